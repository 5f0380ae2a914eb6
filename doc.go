// Package rtpscore implements the data-plane core of an RTPS-style
// publish/subscribe middleware: reliable stateful writers, a
// token-bucket throughput controller, an async sender that drains
// admitted work over UDP, and an AES-128-GCM secure transform for
// readers and writers that have already agreed on key material.
//
// Example:
//
//	p, err := rtpscore.New(rtpscore.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	w := p.CreateWriter(nil)
//	w.MatchedReaderAdd(writer.NewReaderProxy(readerGUID, []transport.Locator{loc}))
//
//	seq, err := w.Write([]byte("hello"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !w.WaitForAcknowledgments(seq, 5*time.Second) {
//	    log.Println("not all readers acknowledged in time")
//	}
package rtpscore
