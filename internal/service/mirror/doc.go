// Package mirror downloads release assets through proxy mirrors.
//
// Each mirror URL is the original asset URL prefixed with
// "https://{prefix}/". Mirrors are tried in order and the first successful
// response is saved as {prefix}{tag}{extension}, CUL{tag}.zip by default.
package mirror
