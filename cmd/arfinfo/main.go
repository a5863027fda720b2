// Command arfinfo inspects and edits ARF files.
package main

import (
	"flag"
	"os"

	log "github.com/golang/glog"
)

func main() {
	// We should send our own log output to stderr.
	flag.Set("logtostderr", "true")

	a := newArfInfo(os.Stdout)
	err := a.run(os.Args)
	if err != nil {
		log.Errorf("%v", err)
	}
	log.Flush()
	if err != nil {
		os.Exit(1)
	}
}
