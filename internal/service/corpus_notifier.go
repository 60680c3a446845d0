package service

import "context"

const CorpusUpdatedFrame = "corpus_updated"

// Broadcaster pushes a notice to every open chat session. Implemented by websocket.Hub.
type Broadcaster interface {
	Broadcast(ctx context.Context, frameType string)
}

// CorpusNotifier drops cached answers and tells open chat sessions that the corpus changed.
type CorpusNotifier struct {
	cache       CacheInvalidator
	broadcaster Broadcaster
}

func NewCorpusNotifier(cache CacheInvalidator, broadcaster Broadcaster) *CorpusNotifier {
	return &CorpusNotifier{cache: cache, broadcaster: broadcaster}
}

func (n *CorpusNotifier) InvalidateCache(ctx context.Context) error {
	if err := n.cache.InvalidateCache(ctx); err != nil {
		return err
	}
	if n.broadcaster != nil {
		n.broadcaster.Broadcast(ctx, CorpusUpdatedFrame)
	}
	return nil
}
