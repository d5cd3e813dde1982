// Package framesync pairs temporally adjacent frames from the front and
// back cameras into synchronized pairs for composition.
//
// The two cameras never tick in lockstep. The coordinator holds at most
// one pending frame per source; when a frame arrives and the other source
// has a pending frame whose capture timestamp lies within the sync window
// (one frame interval by default), the two are emitted as a pair. Pairing
// goes by nearest timestamp, not arrival order, so a late-delivered frame
// still matches the partner it was captured with.
//
// Nothing queues behind the single slot. A newer frame from the same
// source overwrites the pending one, and a pending frame that ages past
// twice the sync window without a partner is dropped by the staleness
// sweep. Both paths release the displaced frame back to the buffer pool
// and increment the skipped counter, so a stalled camera costs frames,
// never memory.
package framesync
