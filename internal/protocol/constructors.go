package protocol

// StartProcessing builds a start-processing control message.
func StartProcessing() ToWorkletMessage {
	return ToWorkletMessage{Kind: KindStartProcessing}
}

// StopProcessing builds a stop-processing control message.
func StopProcessing() ToWorkletMessage {
	return ToWorkletMessage{Kind: KindStopProcessing}
}

// UpdateBatchConfig builds a batch-config update control message.
func UpdateBatchConfig(cfg BatchConfig) ToWorkletMessage {
	return ToWorkletMessage{Kind: KindUpdateBatchConfig, BatchConfig: cfg}
}

// ReturnBuffer builds a buffer-return control message.
func ReturnBuffer(bufferID uint32) ToWorkletMessage {
	return ToWorkletMessage{Kind: KindReturnBuffer, BufferID: bufferID}
}

// NewAudioDataBatch builds a data message carrying a filled buffer.
func NewAudioDataBatch(batch AudioDataBatch) FromWorkletMessage {
	return FromWorkletMessage{Kind: KindAudioDataBatch, AudioDataBatch: batch}
}

// NewProcessingError builds a processing-error status message.
func NewProcessingError(code WorkletErrorCode, message string) FromWorkletMessage {
	return FromWorkletMessage{Kind: KindProcessingError, Error: WorkletError{Code: code, Message: message}}
}

// NewBatchConfigUpdated builds a batch-config acknowledgement message.
func NewBatchConfigUpdated(cfg BatchConfig) FromWorkletMessage {
	return FromWorkletMessage{Kind: KindBatchConfigUpdated, UpdatedBatchConfig: cfg}
}
