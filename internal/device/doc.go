// Package device manages simulation data resident in device memory.
//
// The package is split in two layers:
//
//   - [Backend]: raw allocation, transfer and fill primitives. [HostBackend] is
//     always available; the CUDA backend is compiled with the "cuda" build tag
//     and allocates unified memory so kernels can address it from the host.
//   - [Array] and [Mirror]: typed, sized device allocations and their
//     host-visible counterparts.
//
// Asynchronous copies return a [Transfer] that must be waited on before the
// destination is read:
//
//	t, err := arr.CopyToAsync(host, stream)
//	...
//	if err := t.Wait(); err != nil {
//		return err
//	}
//
// Any allocation or transfer failure is fatal for the run. Callers propagate
// the error to the integrator, which aborts.
//
// Element types stored in an [Array] must not contain Go pointers.
package device
