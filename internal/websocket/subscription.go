package websocket

import "log/slog"

// subscribe replaces c's topic set with the authorized subset of requested.
// The subject's grants are resolved once per request; earlier grants are
// never reused.
func (h *Hub) subscribe(c *Connection, requested []string) {
	if !c.IsAuthenticated() {
		c.sendMessage(NewErrorMessage("Authentication required"))
		return
	}
	subjectID := c.SubjectID()

	topics := dedupeTopics(requested)
	granted := make(map[string]struct{})
	if len(topics) > 0 {
		ctx, cancel := h.lookupContext(c)
		for _, t := range h.authorizer.AvailableTopics(ctx, subjectID) {
			granted[t] = struct{}{}
		}
		cancel()
	}

	allowed := make([]string, 0, len(topics))
	denied := make([]string, 0)
	for _, topic := range topics {
		if _, ok := granted[topic]; ok && topic != "" {
			allowed = append(allowed, topic)
		} else {
			denied = append(denied, topic)
		}
	}

	if !h.isLive(c) || !c.replaceTopics(allowed) {
		slog.Debug("Discarding subscription for closed connection", "connectionID", c.id)
		return
	}

	if len(denied) > 0 {
		h.metrics.SubscriptionDenials.Add(float64(len(denied)))
	}
	slog.Info("Subscription updated", "connectionID", c.id, "userID", subjectID, "streams", allowed, "denied", denied)
	c.sendMessage(NewSubscriptionConfirmedMessage(allowed, denied))
}

// dedupeTopics drops repeated topics, keeping first-appearance order.
func dedupeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
