// Package api
// Author: momentics <momentics@gmail.com>
//
// Shared contracts of the hioload-sock library: the Driver facade the
// session layer consumes, the event stream it demultiplexes, and the
// error taxonomy every component follows. Concrete drivers live in the
// driver and fake packages; session state machinery lives in session.

package api
