package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀)
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫)
	FileModePrivate fs.FileMode = 0600
)

// ErrCorrupted 寫入失敗後無法將檔案還原到上一次成功 Flush 的位置
// 之後所有寫入都會回傳這個錯誤
var ErrCorrupted = errors.New("wal: unable to roll back failed write")

// file WAL 需要的檔案操作，*os.File 即滿足
type file interface {
	io.ReadWriteSeeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// WAL 以 JSON lines 格式 append 的 write-ahead log
//
// Write 只寫入 buffer，Flush 才會寫入檔案並 fsync
// 任何寫入失敗都會把檔案截回上一次成功 Flush 的大小，失敗的資料不會在重播時出現
type WAL struct {
	file   file
	writer *bufio.Writer
	// synced 上一次成功 Flush 後的檔案大小
	synced int64
	// broken 還原失敗時設定
	broken error
	mu     sync.Mutex
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, err
	}
	w, err := newWAL(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func newWAL(f file) (*WAL, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file:   f,
		writer: bufio.NewWriter(f),
		synced: size,
	}, nil
}

// Write 將一筆資料編碼後寫入 buffer
// 失敗時捨棄上一次 Flush 之後的所有資料
func (w *WAL) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(v)
}

// Flush 將 buffer 寫入檔案並強制刷入硬碟
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Append 寫入一筆資料並立即 Flush
// 回傳 nil 代表資料已落盤；回傳錯誤代表這筆資料不在檔案中
func (w *WAL) Append(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeLocked(v); err != nil {
		return err
	}
	return w.flushLocked()
}

func (w *WAL) writeLocked(v any) error {
	if w.broken != nil {
		return w.broken
	}
	// buffer 滿時 bufio 會直接寫入檔案，所以編碼失敗也要還原
	if err := json.NewEncoder(w.writer).Encode(v); err != nil {
		return w.rollback(err)
	}
	return nil
}

func (w *WAL) flushLocked() error {
	if w.broken != nil {
		return w.broken
	}
	if err := w.writer.Flush(); err != nil {
		return w.rollback(err)
	}
	if err := w.file.Sync(); err != nil {
		return w.rollback(err)
	}
	size, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return w.rollback(err)
	}
	w.synced = size
	return nil
}

// rollback 截斷到上一次成功 Flush 的位置並重設 buffer
// bufio.Writer 的錯誤會一直保留，必須 Reset 才能繼續寫入
func (w *WAL) rollback(cause error) error {
	if err := w.file.Truncate(w.synced); err != nil {
		w.broken = fmt.Errorf("%w: %w", ErrCorrupted, errors.Join(cause, err))
		return w.broken
	}
	if err := w.file.Sync(); err != nil {
		w.broken = fmt.Errorf("%w: %w", ErrCorrupted, errors.Join(cause, err))
		return w.broken
	}
	w.writer.Reset(w.file)
	return cause
}

// Close 刷出剩餘資料後關閉檔案
func (w *WAL) Close() error {
	flushErr := w.Flush()
	closeErr := w.file.Close()
	return errors.Join(flushErr, closeErr)
}

// ReadAll 從頭讀取所有資料
// callback 每次收到一筆原始 JSON，避免一次將所有資料載入記憶體
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(bufio.NewReader(w.file))
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
}
