package ldap

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/davgate/davgate/internal/ber"
	"github.com/davgate/davgate/internal/logger"
	"github.com/davgate/davgate/internal/telemetry"
	"github.com/davgate/davgate/pkg/exchange"
)

// handleMessage decodes the LDAP envelope and dispatches the operation.
// A non-nil return closes the connection.
func (c *connection) handleMessage(ctx context.Context, frame []byte) error {
	dec := ber.NewDecoder(frame)

	messageID, err := dec.ReadInt()
	if err != nil {
		// Without a message ID there is nothing to respond to.
		return err
	}

	opTag, _, err := dec.ReadSequence()
	if err != nil {
		c.sendResultBestEffort(messageID, opSearchDone, resultOther, "Malformed request")
		return err
	}

	switch opTag {
	case opBindRequest:
		return c.handleBind(ctx, messageID, dec)

	case opUnbindRequest:
		logger.Debug("LDAP unbind",
			logger.KeyConnectionID, c.id,
			logger.KeyMessageID, messageID)
		return errUnbind

	case opSearchRequest:
		return c.handleSearch(ctx, messageID, dec)

	default:
		logger.Warn("Unsupported LDAP operation",
			logger.KeyConnectionID, c.id,
			logger.KeyMessageID, messageID,
			logger.KeyOperation, int(opTag))
		if c.adapter.metrics != nil {
			c.adapter.metrics.RecordRequest("unsupported", resultOther, 0)
		}
		return c.sendResult(messageID, opSearchDone, resultOther, "Unsupported operation")
	}
}

// handleBind parses a simple bind and acquires an Exchange session.
// Empty DN or password means anonymous: success without a session.
func (c *connection) handleBind(ctx context.Context, messageID int, dec *ber.Decoder) error {
	ctx, span := telemetry.StartLDAPSpan(ctx, "BIND", messageID)
	defer span.End()

	started := time.Now()
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordRequestStart("bind")
		defer c.adapter.metrics.RecordRequestEnd("bind")
	}

	version, err := dec.ReadInt()
	if err != nil {
		c.sendResultBestEffort(messageID, opBindResponse, resultOther, "Malformed bind request")
		return err
	}
	c.utf8 = version >= 3

	bindDN, err := dec.ReadString(c.utf8)
	if err != nil {
		c.sendResultBestEffort(messageID, opBindResponse, resultOther, "Malformed bind request")
		return err
	}
	password, err := dec.ReadStringWithTag(bindPasswordTag, c.utf8)
	if err != nil {
		c.sendResultBestEffort(messageID, opBindResponse, resultOther, "Unsupported authentication method")
		return err
	}

	code := resultSuccess
	message := ""

	if bindDN != "" && password != "" {
		telemetry.SetAttributes(ctx, telemetry.Username(bindDN))
		session, err := c.adapter.factory.Acquire(ctx, bindDN, password)
		if err != nil {
			perr := c.adapter.MapError(err)
			code = int(perr.Code())
			message = perr.Message()
			telemetry.RecordError(ctx, err)
			logger.Info("LDAP bind rejected",
				logger.KeyConnectionID, c.id,
				logger.KeyBindDN, bindDN,
				logger.KeyStatus, code)
		} else {
			c.releaseSession()
			c.session = session
			c.user = bindDN
			logger.Info("LDAP bind",
				logger.KeyConnectionID, c.id,
				logger.KeyBindDN, bindDN,
				logger.KeySessionID, session.ID())
		}
	} else {
		c.releaseSession()
		logger.Debug("LDAP anonymous bind",
			logger.KeyConnectionID, c.id,
			logger.KeyMessageID, messageID)
	}

	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordRequest("bind", code, time.Since(started))
	}
	return c.sendResult(messageID, opBindResponse, code, message)
}

func (c *connection) releaseSession() {
	if c.session != nil {
		c.adapter.factory.Release(c.session)
		c.session = nil
		c.user = ""
	}
}

// handleSearch serves the search request against the GAL.
func (c *connection) handleSearch(ctx context.Context, messageID int, dec *ber.Decoder) error {
	ctx, span := telemetry.StartLDAPSpan(ctx, "SEARCH", messageID)
	defer span.End()

	started := time.Now()
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordRequestStart("search")
		defer c.adapter.metrics.RecordRequestEnd("search")
	}

	baseDN, err := dec.ReadString(c.utf8)
	if err != nil {
		return c.searchParseError(messageID, err)
	}
	scope, err := dec.ReadEnumerated()
	if err != nil {
		return c.searchParseError(messageID, err)
	}
	if _, err = dec.ReadEnumerated(); err != nil { // derefAliases, ignored
		return c.searchParseError(messageID, err)
	}
	sizeLimit, err := dec.ReadInt()
	if err != nil {
		return c.searchParseError(messageID, err)
	}
	if _, err = dec.ReadInt(); err != nil { // timeLimit, ignored
		return c.searchParseError(messageID, err)
	}
	if _, err = dec.ReadBoolean(); err != nil { // typesOnly, ignored
		return c.searchParseError(messageID, err)
	}

	// Exchange never returns more than 100 per galfind; larger client
	// limits are clamped, as are 0 (= unlimited) and negative values
	// some clients send.
	limit := sizeLimit
	if limit <= 0 || limit > maxSizeLimit {
		limit = maxSizeLimit
	}

	logger.Debug("LDAP search",
		logger.KeyConnectionID, c.id,
		logger.KeyMessageID, messageID,
		logger.KeyBaseDN, baseDN,
		logger.KeyScope, scope,
		logger.KeySizeLimit, limit)

	telemetry.SetAttributes(ctx,
		telemetry.LDAPBaseDN(baseDN),
		telemetry.LDAPScope(scope),
		telemetry.LDAPSizeLimit(limit))

	sent, code, message := c.runSearch(ctx, messageID, baseDN, scope, limit, dec)

	telemetry.SetAttributes(ctx,
		telemetry.LDAPEntries(sent),
		telemetry.LDAPResult(code))
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordRequest("search", code, time.Since(started))
		c.adapter.metrics.RecordEntriesReturned(sent)
	}
	logger.Debug("LDAP search done",
		logger.KeyConnectionID, c.id,
		logger.KeyMessageID, messageID,
		logger.KeyEntries, sent,
		logger.KeyStatus, code)
	return c.sendResult(messageID, opSearchDone, code, message)
}

func (c *connection) searchParseError(messageID int, err error) error {
	c.sendResultBestEffort(messageID, opSearchDone, resultOther, "Malformed search request")
	return err
}

// runSearch executes the search branches and emits entries. It returns
// the entry count and terminal result code.
func (c *connection) runSearch(
	ctx context.Context,
	messageID int,
	baseDN string,
	scope, limit int,
	dec *ber.Decoder,
) (sent int, code int, message string) {
	lowerBase := strings.ToLower(baseDN)

	if scope == scopeBaseObject {
		switch {
		case baseDN == "":
			// The Root DSE is addressed by the empty DN but announced
			// under the literal name clients display.
			if err := c.sendEntry(messageID, "Root DSE", rootDSEAttributes()); err != nil {
				return 0, resultOther, "Failed to send entry"
			}
			return 1, resultSuccess, ""

		case lowerBase == baseContext:
			if err := c.sendEntry(messageID, baseContext, baseContextAttributes(c.adapter.config.GatewayURL)); err != nil {
				return 0, resultOther, "Failed to send entry"
			}
			return 1, resultSuccess, ""

		case strings.HasPrefix(lowerBase, "uid=") && strings.Contains(baseDN, ","):
			if c.session == nil {
				// Anonymous clients see an empty result, not an error.
				return 0, resultSuccess, ""
			}
			uid := baseDN[len("uid=") : len("uid=")+strings.Index(baseDN[len("uid="):], ",")]
			persons, err := c.session.GalFind(ctx, exchange.GalCodeAccountName, uid)
			if err != nil {
				perr := c.adapter.MapError(err)
				return 0, int(perr.Code()), perr.Message()
			}
			return c.emitPersons(ctx, messageID, orderedPersons(persons, limit), limit)
		}
		return 0, resultSuccess, ""
	}

	// Subtree and one-level searches only make sense on the GAL base
	// context, and only with a bound session.
	if lowerBase != baseContext || c.session == nil {
		return 0, resultSuccess, ""
	}

	filter, err := parseFilter(dec, c.utf8)
	if err != nil {
		logger.Warn("LDAP filter parse failed",
			logger.KeyConnectionID, c.id,
			logger.KeyMessageID, messageID,
			logger.KeyError, err)
		return 0, resultOther, "Malformed filter"
	}

	results, err := c.collectResults(ctx, filter, limit)
	if err != nil {
		perr := c.adapter.MapError(err)
		return 0, int(perr.Code()), perr.Message()
	}
	return c.emitPersons(ctx, messageID, results, limit)
}

// collectResults merges galfind batches according to the filter, keyed
// by account name, stopping once the size limit is reached.
func (c *connection) collectResults(ctx context.Context, filter searchFilter, limit int) ([]exchange.Person, error) {
	merged := make(map[string]exchange.Person)
	var order []string

	add := func(batch map[string]exchange.Person) bool {
		for _, key := range sortedKeys(batch) {
			if _, seen := merged[key]; seen {
				continue
			}
			merged[key] = batch[key]
			order = append(order, key)
			if len(order) >= limit {
				return true
			}
		}
		return false
	}

	if filter.matchAll {
		// Exchange cannot enumerate the GAL, so a match-all search
		// sweeps account names by first letter. 'Z' is excluded; the
		// original gateway never swept it and the address lists this
		// serves are far below the per-letter cap.
		for letter := byte('A'); letter < 'Z'; letter++ {
			batch, err := c.session.GalFind(ctx, exchange.GalCodeAccountName, string(letter))
			if err != nil {
				return nil, err
			}
			if add(batch) {
				break
			}
		}
	} else {
		for _, criterion := range filter.criteria {
			batch, err := c.session.GalFind(ctx, criterion.code, criterion.value)
			if err != nil {
				return nil, err
			}
			if add(batch) {
				break
			}
		}
	}

	persons := make([]exchange.Person, 0, len(order))
	for _, key := range order {
		persons = append(persons, merged[key])
	}
	return persons, nil
}

// emitPersons serializes the result set. Small result sets get the
// per-entry gallookup enrichment first. The terminal code is
// SIZE_LIMIT_EXCEEDED exactly when the limit was filled.
func (c *connection) emitPersons(ctx context.Context, messageID int, persons []exchange.Person, limit int) (int, int, string) {
	if len(persons) > limit {
		persons = persons[:limit]
	}

	if len(persons) <= lookupThreshold {
		for _, person := range persons {
			if err := c.session.GalLookup(ctx, person); err != nil {
				logger.Debug("GAL lookup failed",
					logger.KeyConnectionID, c.id,
					logger.KeyError, err)
			}
		}
	}

	for i, person := range persons {
		if err := c.sendPersonEntry(messageID, person); err != nil {
			logger.Debug("Failed to send search entry",
				logger.KeyConnectionID, c.id,
				logger.KeyError, err)
			return i, resultOther, "Failed to send entry"
		}
	}

	if len(persons) == limit {
		return len(persons), resultSizeLimitExceeded, ""
	}
	return len(persons), resultSuccess, ""
}

// orderedPersons flattens a galfind result deterministically.
func orderedPersons(batch map[string]exchange.Person, limit int) []exchange.Person {
	keys := sortedKeys(batch)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	persons := make([]exchange.Person, 0, len(keys))
	for _, key := range keys {
		persons = append(persons, batch[key])
	}
	return persons
}

func sortedKeys(batch map[string]exchange.Person) []string {
	keys := make([]string, 0, len(batch))
	for key := range batch {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// sendResult writes a result message: SEQUENCE{messageID, [op]{code,
// matchedDN, errorMessage}}.
func (c *connection) sendResult(messageID int, opTag byte, code int, message string) error {
	c.enc.Reset()
	c.enc.BeginSeq(ber.TagSequence)
	c.enc.WriteInt(messageID)
	c.enc.BeginSeq(opTag)
	c.enc.WriteEnumerated(code)
	c.enc.WriteString("", c.utf8)
	c.enc.WriteString(message, c.utf8)
	c.enc.EndSeq()
	c.enc.EndSeq()
	return c.write(c.enc.Bytes())
}

// sendResultBestEffort reports a protocol failure before the caller
// closes the connection; a failing write only gets a log line.
func (c *connection) sendResultBestEffort(messageID int, opTag byte, code int, message string) {
	if err := c.sendResult(messageID, opTag, code, message); err != nil {
		logger.Debug("Failed to send error response",
			logger.KeyConnectionID, c.id,
			logger.KeyError, err)
	}
}
