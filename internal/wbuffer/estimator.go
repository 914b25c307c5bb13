package wbuffer

// serverOverheadBytes is the 16 KiB - 2 bytes of framing overhead the
// server guarantees on top of max_bson_obj_size for a batched write.
const serverOverheadBytes = 16382

// Overflow reports whether adding nextItemBytes to a batch that already
// holds bytesSoFar bytes and nWritten items would exceed either of the two
// simultaneous capacity constraints: the BSON size ceiling (maxBSON plus
// the server's overhead allowance) or the operation-count ceiling
// (maxBatch, when positive). This is the Size Estimator, component C2.
func Overflow(bytesSoFar, nextItemBytes, nWritten int, maxBSON, maxBatch int32) bool {
	if int64(bytesSoFar)+int64(nextItemBytes) > int64(maxBSON)+serverOverheadBytes {
		return true
	}
	if maxBatch > 0 && nWritten >= int(maxBatch) {
		return true
	}
	return false
}

// MaxCmdSize is the maximum size of a single command document: the same
// maxBSON-plus-allowance ceiling that Overflow applies.
func MaxCmdSize(maxBSON int32) int {
	return int(maxBSON) + serverOverheadBytes
}
