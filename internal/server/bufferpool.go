package server

import (
	"bufio"
	"io"
	"sync"
)

const readerBufferSize = 4096

// readerPool recycles the bufio.Reader each accepted connection is
// wrapped in, avoiding one 4KB allocation per connection under load.
var readerPool = sync.Pool{
	New: func() interface{} { return bufio.NewReaderSize(nil, readerBufferSize) },
}

func getBufioReader(r io.Reader) *bufio.Reader {
	br := readerPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

func putBufioReader(br *bufio.Reader) {
	br.Reset(nil)
	readerPool.Put(br)
}
