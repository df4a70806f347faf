/*
Package bridge is a tiny caller for native modules loaded at runtime.

# License

Source codes are under Apache License Version 2.0.

A module is any dynamically loadable unit which exports one function named hz_process,
taking one text and returning one text (or null). The [Bridge] loads the module, resolves
the symbol, calls it and hands the copied result back to the caller.

# Contract

	const char* hz_process(const char* payload);
	void        hz_free(char* result); // optional, releases what hz_process returned

Every invocation opens its own module handle and releases it before returning,
nothing is cached between calls.

# Failures

There are three kinds of failure, all logged and reported as [*Failure]:

 1. LoadFailure: the module could not be opened, match with [ErrLoadFailure].
 2. SymbolNotFound: the module has no hz_process, match with [ErrSymbolNotFound].
 3. CallFailure: hz_process panicked, trapped, threw or failed, match with [ErrCallFailure].

The boundary call [Run] collapses all of them into the [Sentinel] text "NULL".

# Loaders

Module names are dispatched to a [Loader] by extension. Shared libraries are opened through [purego].
With cgo enabled, hz_process runs behind a c++ guard and a thrown exception becomes [ErrThrown];
built with CGO_ENABLED=0 there is no guard and an exception terminates the process.
Other backends live in sub packages and register themselves when imported:

	import _ "github.com/ZenLiuCN/bridge/wasm"  // .wasm modules via wazero
	import _ "github.com/ZenLiuCN/bridge/goobj" // .o and .a go objects via goloader

# Tools

The hzcall cli can run, map, inspect and compile modules:

	go install github.com/ZenLiuCN/bridge/cmd/hzcall@latest
	hzcall -h

# Samples

See testdata and tests.

[purego]: https://github.com/ebitengine/purego
*/
package bridge
