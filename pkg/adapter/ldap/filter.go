package ldap

import (
	"strings"

	"github.com/davgate/davgate/internal/ber"
	"github.com/davgate/davgate/internal/logger"
	"github.com/davgate/davgate/pkg/exchange"
)

// filterAttributeMap translates LDAP filter attributes into the GAL
// search codes Exchange indexes.
var filterAttributeMap = map[string]string{
	"mail":        exchange.GalCodeFirstName,
	"displayname": exchange.GalCodeDisplayName,
	"cn":          exchange.GalCodeDisplayName,
	"givenname":   exchange.GalCodeFirstName,
	"sn":          exchange.GalCodeLastName,
	"title":       exchange.GalCodeTitle,
	"company":     exchange.GalCodeCompany,
	"o":           exchange.GalCodeCompany,
	"l":           exchange.GalCodeOffice,
	"department":  exchange.GalCodeDepartment,
}

// criterion is one GAL query derived from the filter.
type criterion struct {
	code  string
	value string
}

// searchFilter is the Exchange-expressible reduction of an LDAP filter.
// matchAll triggers the alphabet sweep; otherwise each criterion maps
// to one galfind call.
type searchFilter struct {
	matchAll bool
	criteria []criterion
}

// parseFilter reduces the request filter. Unsupported constructs are
// logged and dropped rather than rejected: address book clients send
// broad (|(...)(...)) unions and partial results beat none.
func parseFilter(dec *ber.Decoder, utf8 bool) (searchFilter, error) {
	var filter searchFilter
	if dec.Remaining() == 0 {
		return filter, nil
	}
	if err := parseFilterNode(dec, utf8, &filter); err != nil {
		return searchFilter{}, err
	}
	return filter, nil
}

func parseFilterNode(dec *ber.Decoder, utf8 bool, filter *searchFilter) error {
	tag, err := dec.PeekByte()
	if err != nil {
		return err
	}

	switch tag {
	case filterPresent:
		// Primitive: content is the attribute name itself.
		attr, err := dec.ReadStringWithTag(filterPresent, utf8)
		if err != nil {
			return err
		}
		if strings.ToLower(attr) == "objectclass" {
			filter.matchAll = true
		} else {
			logger.Warn("Unsupported presence filter attribute", logger.KeyAttribute, attr)
		}
		return nil

	case filterOr:
		_, length, err := dec.ReadSequence()
		if err != nil {
			return err
		}
		end := dec.Offset() + length
		for dec.Offset() < end && dec.Remaining() > 0 {
			if err := parseFilterNode(dec, utf8, filter); err != nil {
				return err
			}
		}
		return nil

	case filterSubstrings:
		return parseSubstringFilter(dec, utf8, filter)

	default:
		// AND, NOT, equality and the ordering matches have no GAL
		// equivalent.
		logger.Warn("Unsupported filter type", logger.KeyFilter, int(tag))
		return skipFilterNode(dec)
	}
}

// parseSubstringFilter reads one (attr=value*) style filter. Exchange
// only prefix-matches, so the first substring component of any kind
// becomes the search value.
func parseSubstringFilter(dec *ber.Decoder, utf8 bool, filter *searchFilter) error {
	_, length, err := dec.ReadSequence()
	if err != nil {
		return err
	}
	end := dec.Offset() + length

	attr, err := dec.ReadString(utf8)
	if err != nil {
		return err
	}
	attr = strings.ToLower(attr)

	if _, _, err := dec.ReadSequence(); err != nil { // substrings SEQUENCE
		return err
	}

	componentTag, err := dec.PeekByte()
	if err != nil {
		return err
	}
	switch componentTag {
	case substringInitial, substringAny, substringFinal:
	default:
		return &ber.TagError{Offset: dec.Offset(), Want: substringInitial, Got: componentTag}
	}
	value, err := dec.ReadStringWithTag(componentTag, utf8)
	if err != nil {
		return err
	}

	// Further components carry no information Exchange can use.
	if err := dec.Discard(end - dec.Offset()); err != nil {
		return err
	}

	code, ok := filterAttributeMap[attr]
	if !ok {
		logger.Warn("Unsupported filter attribute", logger.KeyAttribute, attr)
		return nil
	}
	filter.criteria = append(filter.criteria, criterion{code: code, value: value})
	return nil
}

// skipFilterNode discards one filter element wholesale.
func skipFilterNode(dec *ber.Decoder) error {
	_, length, err := dec.ReadSequence()
	if err != nil {
		return err
	}
	return dec.Discard(length)
}
