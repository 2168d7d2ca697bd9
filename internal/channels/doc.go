// Package channels provides the channel primitives the flowviz pipeline is
// built on.
//
// Plain Go channels cannot tell a sender that nobody will ever receive again,
// and they have no notion of several independent senders each releasing their
// end. Both are needed to let shutdown propagate through a multi-producer,
// multi-consumer pipeline without extra coordination, so this package wraps
// them in handle types:
//
//   - Bounded: fixed capacity FIFO. Send suspends while the channel is full.
//   - Unbounded: FIFO without a capacity limit. Publish never suspends.
//
// # Handles
//
// Every participant takes its own handle and closes it when done:
//
//	intake := channels.NewBounded[uint64](1024)
//	tx := intake.Sender()
//	rx := intake.Receiver()
//
//	go func() {
//	    defer tx.Close()
//	    for {
//	        if err := tx.Send(next()); err != nil {
//	            return // receiving end closed
//	        }
//	    }
//	}()
//
// When the last Sender is closed, receivers drain the buffered items and then
// get ErrDisconnected. When the last Receiver is closed, or the owner calls
// CloseRecv, pending and future sends fail with ErrDisconnected.
package channels
