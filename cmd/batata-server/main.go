// Command batata-server runs the discovery/config server core: the HTTP
// admin surface on BATATA_HTTP_ADDR and the bidirectional session RPC
// surface on BATATA_RPC_ADDR, sharing one set of in-memory components
// (registry, subscription bus, config store, notify bus, session manager)
// backed by a pluggable bun-backed KV.
package main

import "github.com/easynet-cn/batata/cmd/batata-server/cmd"

func main() {
	cmd.Execute()
}
