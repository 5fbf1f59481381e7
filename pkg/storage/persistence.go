package storage

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/indexing"
)

// snapshot copies every table under its read lock. Tables are captured one
// at a time, so the result is consistent per table. The returned map holds
// each captured table's revision.
func (se *StorageEngine) snapshot() (*StorageData, map[*TableInfo]uint64) {
	storageData := NewStorageData()
	captured := make(map[*TableInfo]uint64)
	for _, name := range se.Tables() {
		err := se.withTableReadLock(name, func(info *TableInfo) error {
			primary, err := se.index(info, domain.PrimaryKey)
			if err != nil {
				return err
			}
			docs := primary.All()
			data := &TableData{Def: *copyTable(info.Def), Records: make([]map[string]interface{}, len(docs))}
			for i, doc := range docs {
				data.Records[i] = map[string]interface{}(doc)
			}
			storageData.Tables[name] = data
			captured[info] = info.revision
			return nil
		})
		if err != nil {
			// dropped while saving
			continue
		}
	}
	return storageData, captured
}

// SaveToFile writes every table to filename. The file is replaced atomically.
func (se *StorageEngine) SaveToFile(filename string) error {
	se.saveMu.Lock()
	defer se.saveMu.Unlock()

	start := time.Now()
	storageData, captured := se.snapshot()

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	tempFile := filename + ".tmp"
	if err := writeSnapshot(tempFile, storageData); err != nil {
		os.Remove(tempFile)
		return err
	}
	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename data file: %w", err)
	}

	for info, revision := range captured {
		se.markClean(info, revision)
	}

	log.Printf("INFO: Saved %d tables to %s in %v", len(storageData.Tables), filename, time.Since(start))
	return nil
}

// markClean clears the dirty flag unless the table changed after it was
// captured.
func (se *StorageEngine) markClean(info *TableInfo, revision uint64) {
	lock := se.getOrCreateTableLock(info.Def.Name)
	lock.mu.Lock()
	defer lock.mu.Unlock()
	if info.revision == revision {
		info.State = TableStateClean
	}
}

func writeSnapshot(filename string, storageData *StorageData) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := WriteHeader(w); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	zw := lz4.NewWriter(w)
	if err := msgpack.NewEncoder(zw).Encode(storageData); err != nil {
		return fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	return file.Sync()
}

func readSnapshot(filename string) (*StorageData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	if _, err := ReadHeader(r); err != nil {
		return nil, fmt.Errorf("invalid file header: %w", err)
	}

	var storageData StorageData
	if err := msgpack.NewDecoder(lz4.NewReader(r)).Decode(&storageData); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &storageData, nil
}

// LoadFromFile restores the tables stored in filename and rebuilds their
// indexes. Tables absent from the file are kept. A missing file is not an
// error.
func (se *StorageEngine) LoadFromFile(filename string) error {
	storageData, err := readSnapshot(filename)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("INFO: No data file at %s, starting empty", filename)
			return nil
		}
		return err
	}

	type loaded struct {
		info    *TableInfo
		indexes []*indexing.Index
	}
	tables := make(map[string]loaded, len(storageData.Tables))
	for name, data := range storageData.Tables {
		def := domain.NewTable(name, data.Def.Indexes)
		def.Version = data.Def.Version
		if err := def.Validate(); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}

		info := &TableInfo{Def: def, State: TableStateClean, LastModified: se.now()}
		docs := make([]domain.Document, 0, len(data.Records))
		for _, rec := range data.Records {
			doc := domain.Document(rec)
			if _, ok := doc.ID(); !ok {
				return fmt.Errorf("table %s: record without %s", name, domain.PrimaryKey)
			}
			se.observeCreatedAt(info, doc)
			docs = append(docs, doc)
		}
		indexes, err := buildIndexes(def, docs)
		if err != nil {
			return err
		}
		info.DocumentCount = int64(len(docs))
		tables[name] = loaded{info: info, indexes: indexes}
	}

	for name, t := range tables {
		lock := se.getOrCreateTableLock(name)
		lock.mu.Lock()
		se.indexEngine.ReplaceTable(name, t.indexes)
		se.mu.Lock()
		se.tables[name] = t.info
		se.mu.Unlock()
		lock.mu.Unlock()

		log.Printf("INFO: Loaded table %s (version %d) with %d records", name, t.info.Def.Version, t.info.DocumentCount)
	}

	return nil
}

// saveDirtyTables saves the data file when any table changed since the last save
func (se *StorageEngine) saveDirtyTables() {
	dirty := 0
	for _, name := range se.Tables() {
		_ = se.withTableReadLock(name, func(info *TableInfo) error {
			if info.State == TableStateDirty {
				dirty++
			}
			return nil
		})
	}

	if dirty == 0 {
		return
	}

	log.Printf("INFO: Background save starting - %d dirty tables", dirty)
	if err := se.SaveToFile(se.dataFile); err != nil {
		log.Printf("ERROR: Background save failed: %v", err)
	}
}
