package mnet

import "sync"

// datagramPool recycles jumbo-sized receive buffers so a busy receive loop
// does not allocate on every datagram.
var datagramPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 9000)
		return &buf
	},
}

func getBuffer() *[]byte { return datagramPool.Get().(*[]byte) }

func putBuffer(buf *[]byte) { datagramPool.Put(buf) }
