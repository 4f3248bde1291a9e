// Package sdk installs the docteur profiling instrumentation inside a target
// process.
//
// A host runtime (a module loader, a framework bootstrapper or a test
// harness) creates one SDK at startup, before any application code runs,
// and routes its module resolution and loading through the returned hooks
// and its lifecycle phases through the returned channels. When the process
// runs under "docteur diagnose" the SDK attaches to the descriptors the
// profiler passed down, streams telemetry and answers getResults requests.
// Outside a profiling run it degrades to a pass-through with no recording.
//
// Basic integration:
//
//	import "github.com/coral-mesh/docteur/pkg/sdk"
//
//	func main() {
//	    prof, err := sdk.New(sdk.Config{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer prof.Close()
//
//	    loader := myruntime.NewLoader(prof.Hooks())
//	    app := myframework.New(loader, prof.Channels())
//	    app.Boot()
//
//	    fmt.Println("started HTTP server on :3333")
//	    http.ListenAndServe(":3333", app)
//	}
//
// Execution time can be captured either natively, by wrapping module
// evaluation in SDK.Execute, or by configuring a hooks.SourceInstrumenter
// whose epilogue calls SDK.RecordExecution.
package sdk
