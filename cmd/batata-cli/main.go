// Command batata-cli is the operator client for a batata-server: login,
// config publish/get/remove/history, and namespace/service inspection over
// the HTTP admin surface.
package main

import "github.com/easynet-cn/batata/cmd/batata-cli/cmd"

func main() {
	cmd.Execute()
}
