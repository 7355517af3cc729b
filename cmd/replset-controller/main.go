// Command replset-controller runs one sidecar instance of the replica-set
// membership controller.
package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		klog.ErrorS(err, "replset-controller exited with an error")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
