package broker

import (
	"fmt"
	"strings"
)

// ExchangeKind is the routing behaviour of an exchange. Only topic
// exchanges are supported.
type ExchangeKind string

// ExchangeTopic routes on dot-separated routing keys with * and # wildcards.
const ExchangeTopic ExchangeKind = "topic"

// Routing key syntax.
const (
	keySeparator   = "."
	topicSeparator = "/"
	wildcardOne    = "*"
	wildcardMany   = "#"
	topicOne       = "+"
)

// ValidateExchange checks that name can be used as the first topic level.
func ValidateExchange(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidExchange)
	}
	if strings.ContainsAny(name, "/+#*") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidExchange, name)
	}
	return nil
}

// ValidateRoutingKey checks a publish key (pattern=false) or a binding
// pattern (pattern=true).
//
// Keys are dot-separated non-empty tokens. In patterns "*" and "#" must be
// whole tokens, and "#" may only appear last because the transport cannot
// express a multi-level wildcard anywhere else.
func ValidateRoutingKey(key string, pattern bool) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoutingKey)
	}

	tokens := strings.Split(key, keySeparator)
	for i, tok := range tokens {
		switch {
		case tok == "":
			return fmt.Errorf("%w: %q has an empty token", ErrInvalidRoutingKey, key)
		case strings.ContainsAny(tok, "/+"):
			return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidRoutingKey, key)
		case tok == wildcardOne || tok == wildcardMany:
			if !pattern {
				return fmt.Errorf("%w: wildcard in publish key %q", ErrInvalidRoutingKey, key)
			}
			if tok == wildcardMany && i != len(tokens)-1 {
				return fmt.Errorf("%w: %q must end at #", ErrInvalidRoutingKey, key)
			}
		case strings.ContainsAny(tok, "*#"):
			return fmt.Errorf("%w: wildcard inside token in %q", ErrInvalidRoutingKey, key)
		}
	}
	return nil
}

// Topic maps an exchange and routing key onto a transport topic:
// ("sensors_exchange", "sensor.temperature") becomes
// "sensors_exchange/sensor/temperature".
func Topic(exchange, routingKey string) string {
	return exchange + topicSeparator + strings.ReplaceAll(routingKey, keySeparator, topicSeparator)
}

// TopicFilter maps a binding pattern onto a transport subscription filter.
// "*" becomes "+" and "#" stays "#".
func TopicFilter(exchange, pattern string) string {
	tokens := strings.Split(pattern, keySeparator)
	for i, tok := range tokens {
		if tok == wildcardOne {
			tokens[i] = topicOne
		}
	}
	return exchange + topicSeparator + strings.Join(tokens, topicSeparator)
}

// SplitTopic is the inverse of Topic.
func SplitTopic(topic string) (exchange, routingKey string) {
	exchange, rest, ok := strings.Cut(topic, topicSeparator)
	if !ok {
		return topic, ""
	}
	return exchange, strings.ReplaceAll(rest, topicSeparator, keySeparator)
}

// MatchRoutingKey reports whether key matches a binding pattern.
// "*" matches exactly one token and "#" zero or more.
func MatchRoutingKey(pattern, key string) bool {
	return matchTokens(strings.Split(pattern, keySeparator), strings.Split(key, keySeparator), wildcardOne)
}

// matchFilter is MatchRoutingKey for transport topics.
func matchFilter(filter, topic string) bool {
	return matchTokens(strings.Split(filter, topicSeparator), strings.Split(topic, topicSeparator), topicOne)
}

func matchTokens(pattern, key []string, one string) bool {
	for i, tok := range pattern {
		if tok == wildcardMany {
			return true
		}
		if i >= len(key) {
			return false
		}
		if tok != one && tok != key[i] {
			return false
		}
	}
	return len(pattern) == len(key)
}
