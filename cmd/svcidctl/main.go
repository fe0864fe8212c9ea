// Command svcidctl exposes operational diagnostics for the service
// identification core: dumping the port registry and reporting host-tracker
// cache stats, without needing to embed the library into a full capture
// pipeline to inspect its state.
package main

func main() {
	Execute()
}
