package wal

// NewWALWithFile 以自訂的檔案實作建立 WAL
func NewWALWithFile(f file) (*WAL, error) {
	return newWAL(f)
}
