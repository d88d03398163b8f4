// Package service 提供业务逻辑层的实现
package service

import (
	"errors"
	"fmt"
)

// 会话服务相关错误
var (
	ErrValidation      = errors.New("参数错误")
	ErrSessionNotFound = errors.New("会话不存在")
	ErrSessionClaimed  = errors.New("会话已被其他客服接入")
)

// 账号相关错误
var (
	ErrOperatorNotFound = errors.New("账号不存在")
	ErrPasswordWrong    = errors.New("密码错误")
	ErrOperatorDisabled = errors.New("账号已被禁用")
)

// StoreError 存储层读写失败
// Op 记录失败的操作，便于日志定位
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr 包装存储层错误，nil 原样返回
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// validationErr 带字段说明的参数错误
func validationErr(field string) error {
	return fmt.Errorf("%w: %s 不能为空", ErrValidation, field)
}
