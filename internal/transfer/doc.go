// Package transfer pulls finished media off the backend and writes it to a
// blob store. The batch synchronizer hands completed items to a Pool, whose
// workers stream each download into <prefix>/<item id>/<filename>.
package transfer
