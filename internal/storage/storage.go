package storage

import "datedVamm/internal/model"

// Storage defines a sink for journal records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}
