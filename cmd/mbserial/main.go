// Command mbserial sends requests to, or answers requests as, a unit on a
// serial line using the ASCII or RTU framing.
//
//	mbserial send --port /dev/ttyUSB0 --mode ascii --address 1 --command 2
//	mbserial listen --port /dev/ttyUSB1 --mode rtu --address 1
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
