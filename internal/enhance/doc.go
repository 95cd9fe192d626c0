// Package enhance talks to the external super-resolution inference service
// and bounds concurrent inference with a shared admission pool.
package enhance
