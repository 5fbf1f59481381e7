package storage

import "time"

type StorageOption func(*StorageEngine)

// WithDataFile sets the snapshot file used by background saves.
func WithDataFile(path string) StorageOption {
	return func(engine *StorageEngine) {
		engine.dataFile = path
	}
}

// WithBackgroundSave saves dirty tables to the data file on every tick.
func WithBackgroundSave(interval time.Duration) StorageOption {
	return func(engine *StorageEngine) {
		engine.backgroundSave = true
		engine.saveInterval = interval
	}
}

// WithClock replaces the time source used for createdAt.
func WithClock(now func() time.Time) StorageOption {
	return func(engine *StorageEngine) {
		engine.now = now
	}
}

// WithIDGenerator replaces the generator of missing primary keys.
func WithIDGenerator(newID func() string) StorageOption {
	return func(engine *StorageEngine) {
		engine.newID = newID
	}
}
