// supportctl 是客服命令行控制台
package main

import "dealer-support-server/internal/cli/cmd"

func main() {
	cmd.Execute()
}
