package segment

// Callbacks are invoked synchronously by the detector from the goroutine
// that calls PushPCM or Flush. All fields are optional (nil is allowed).
type Callbacks struct {
	OnListeningStarted func()
	OnListeningStopped func()

	OnSpeechStart func()
	OnSpeechEnd   func()

	// OnSegmentReady receives a finished segment with its turns. The
	// detector does not reuse the segment's sample slices.
	OnSegmentReady func(seg Segment)

	// OnTurnPrediction receives the turn predictor's decision for every
	// pause it was asked about. complete is true when the model thinks the
	// turn is finished; probability is the underlying score.
	OnTurnPrediction func(complete bool, probability float32)

	OnError func(err error)
}
