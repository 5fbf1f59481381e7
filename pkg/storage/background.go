package storage

import (
	"log"
	"runtime"
	"time"
)

// GetMemoryStats returns current memory usage statistics
func (se *StorageEngine) GetMemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	records := int64(0)
	for _, name := range se.Tables() {
		if info, err := se.Info(name); err == nil {
			records += info.DocumentCount
		}
	}

	return map[string]interface{}{
		"alloc_mb":       m.Alloc / 1024 / 1024,
		"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
		"sys_mb":         m.Sys / 1024 / 1024,
		"num_goroutines": runtime.NumGoroutine(),
		"tables":         len(se.Tables()),
		"records":        records,
	}
}

// StartBackgroundWorkers starts the background save worker when a data file
// and an interval are configured.
func (se *StorageEngine) StartBackgroundWorkers() {
	if !se.backgroundSave || se.dataFile == "" {
		return
	}

	log.Printf("INFO: Background save every %v to %s", se.saveInterval, se.dataFile)
	se.backgroundWg.Add(1)
	go func() {
		defer se.backgroundWg.Done()
		ticker := time.NewTicker(se.saveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				se.saveDirtyTables()
			case <-se.stopChan:
				return
			}
		}
	}()
}

// StopBackgroundWorkers stops background workers
func (se *StorageEngine) StopBackgroundWorkers() {
	se.stopOnce.Do(func() { close(se.stopChan) })
	se.backgroundWg.Wait()
}
