package ldap

import (
	"fmt"

	"github.com/davgate/davgate/internal/ber"
	"github.com/davgate/davgate/pkg/exchange"
)

// entryAttr is one attribute of a search entry. Values is a string or
// a []string; anything else is a programming error, not reachable from
// wire input.
type entryAttr struct {
	name   string
	values any
}

// personAttributeMap projects GAL fields into LDAP attributes, in the
// order clients see them. The misspelt "departement" is kept verbatim:
// deployed address book templates query it.
var personAttributeMap = []struct {
	ldap string
	gal  string
}{
	{"uid", exchange.GalCodeAccountName},
	{"mail", exchange.FieldEmail},
	{"displayName", exchange.GalCodeDisplayName},
	{"telephoneNumber", exchange.FieldPhone},
	{"l", exchange.FieldOffice},
	{"company", exchange.GalCodeCompany},
	{"title", exchange.GalCodeTitle},
	{"cn", exchange.GalCodeDisplayName},
	{"givenName", exchange.FieldFirst},
	{"initials", exchange.FieldInitials},
	{"sn", exchange.FieldLast},
	{"street", exchange.FieldStreet},
	{"st", exchange.FieldState},
	{"postalCode", exchange.FieldZip},
	{"c", exchange.FieldCountry},
	{"departement", exchange.FieldDepartment},
	{"mobile", exchange.FieldMobile},
}

// rootDSEAttributes is the empty-base answer advertising the naming
// context.
func rootDSEAttributes() []entryAttr {
	return []entryAttr{
		{"objectClass", "top"},
		{"namingContexts", baseContext},
	}
}

// baseContextAttributes describes the ou=people entry itself.
func baseContextAttributes(gatewayURL string) []entryAttr {
	return []entryAttr{
		{"objectClass", []string{"top", "organizationalUnit"}},
		{"description", "DavMail Gateway LDAP for " + gatewayURL},
	}
}

// sendPersonEntry projects one GAL record and sends it. Absent fields
// are omitted.
func (c *connection) sendPersonEntry(messageID int, person exchange.Person) error {
	attrs := make([]entryAttr, 0, len(personAttributeMap))
	for _, mapping := range personAttributeMap {
		if value := person[mapping.gal]; value != "" {
			attrs = append(attrs, entryAttr{mapping.ldap, value})
		}
	}
	dn := fmt.Sprintf("uid=%s,%s", person.AN(), baseContext)
	return c.sendEntry(messageID, dn, attrs)
}

// sendEntry encodes one SearchResultEntry:
// SEQUENCE{messageID, [APP 4]{dn, SEQ OF SEQ{attr, SET OF value}}}.
func (c *connection) sendEntry(messageID int, dn string, attrs []entryAttr) error {
	c.enc.Reset()
	c.enc.BeginSeq(ber.TagSequence)
	c.enc.WriteInt(messageID)
	c.enc.BeginSeq(opSearchEntry)
	c.enc.WriteString(dn, c.utf8)
	c.enc.BeginSeq(ber.TagSequence)
	for _, attr := range attrs {
		c.enc.BeginSeq(ber.TagSequence)
		c.enc.WriteString(attr.name, c.utf8)
		c.enc.BeginSeq(ber.TagSet)
		switch values := attr.values.(type) {
		case string:
			c.enc.WriteString(values, c.utf8)
		case []string:
			for _, value := range values {
				c.enc.WriteString(value, c.utf8)
			}
		default:
			panic(fmt.Sprintf("ldap: unsupported attribute value type %T", attr.values))
		}
		c.enc.EndSeq()
		c.enc.EndSeq()
	}
	c.enc.EndSeq()
	c.enc.EndSeq()
	c.enc.EndSeq()
	return c.write(c.enc.Bytes())
}
