package processing

import (
	"encoding/json"

	customlog "github.com/open-teleop/rover/pkg/log"
)

// MessagePublisher defines the interface for publishing messages
type MessagePublisher interface {
	PublishMessage(topic string, data []byte) error
}

// LoggingResultHandler logs processing results and republishes them
type LoggingResultHandler struct {
	logger    customlog.Logger
	publisher MessagePublisher
}

// NewLoggingResultHandler creates a new logging result handler. publisher may be nil.
func NewLoggingResultHandler(logger customlog.Logger, publisher MessagePublisher) *LoggingResultHandler {
	return &LoggingResultHandler{
		logger:    logger,
		publisher: publisher,
	}
}

// HandleResult handles a processed message result
func (h *LoggingResultHandler) HandleResult(result *ProcessResult) {
	if result == nil {
		return
	}
	if result.Error != nil {
		h.logger.Debugf("Dropped message for topic '%s': %v", result.Topic, result.Error)
		return
	}
	if result.Data == nil || h.publisher == nil {
		return
	}

	jsonData, err := json.Marshal(result.Data)
	if err != nil {
		h.logger.Errorf("Failed to encode result for topic '%s': %v", result.Topic, err)
		return
	}
	if err := h.publisher.PublishMessage(result.Topic, jsonData); err != nil {
		h.logger.Errorf("Failed to publish message for topic '%s': %v", result.Topic, err)
	}
}

// CreateHandlerFunc creates a ResultHandler function for the ProcessingPool
func (h *LoggingResultHandler) CreateHandlerFunc() ResultHandler {
	return h.HandleResult
}
