package filesystem

// record is one file's metadata entry in the directory. It corresponds to
// the reference implementation's struct file (file_system.c), restructured
// as a value owned exclusively by the file list — descriptors only borrow a
// pointer to it.
type record struct {
	filename   string
	startBlock uint32
	numBlocks  uint32
	size       uint32
	dirOffset  int
	opened     bool
}

// serializedSize returns the number of bytes this record occupies once
// encoded in the directory buffer: a 2-byte length prefix, the filename plus
// its NUL terminator, and three 4-byte fields.
func (r *record) serializedSize() int {
	return len(r.filename) + 15
}

// extentEnd returns the block index one past the file's last owned block.
func (r *record) extentEnd() uint32 {
	return r.startBlock + r.numBlocks
}
