// Command libhzbridge is the c abi boundary of the bridge, build it as a shared library:
//
//	go build -buildmode=c-shared -o libhzbridge.so ./cmd/libhzbridge
//
// Exports:
//
//	char* hz_bridge_run(const char* payload, const char* library); // result or "NULL", free with hz_bridge_free
//	void  hz_bridge_free(char* result);
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/ZenLiuCN/bridge"
	_ "github.com/ZenLiuCN/bridge/wasm"
)

var shared = bridge.New()

//export hz_bridge_run
func hz_bridge_run(payload, library *C.char) *C.char {
	if payload == nil || library == nil {
		return C.CString(bridge.Sentinel)
	}
	return C.CString(shared.Run(context.Background(), C.GoString(payload), C.GoString(library)))
}

//export hz_bridge_free
func hz_bridge_free(result *C.char) {
	C.free(unsafe.Pointer(result))
}

func main() {}
