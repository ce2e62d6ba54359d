package corpus

import (
	"fmt"
	"strings"
)

// uniprotEntry renders a trimmed-down Swiss-Prot entry. A negative length omits <sequence>.
func uniprotEntry(accessions []string, length int, comments, titles []string) string {
	var b strings.Builder
	b.WriteString(`<entry dataset="Swiss-Prot" created="1986-07-21" version="120">` + "\n")
	for _, acc := range accessions {
		fmt.Fprintf(&b, "  <accession>%s</accession>\n", acc)
	}
	b.WriteString("  <name>TEST_HUMAN</name>\n")
	for _, t := range titles {
		fmt.Fprintf(&b, "  <reference key=\"1\"><citation type=\"journal article\"><title>%s</title></citation></reference>\n", t)
	}
	for _, c := range comments {
		fmt.Fprintf(&b, "  <comment type=\"function\"><text evidence=\"1\">%s</text></comment>\n", c)
	}
	if length >= 0 {
		fmt.Fprintf(&b, "  <sequence length=\"%d\" mass=\"1234\" checksum=\"ABC\">MKV</sequence>\n", length)
	}
	b.WriteString("</entry>\n")
	return b.String()
}

// uniprotDump wraps entries the way the Swiss-Prot release does.
func uniprotDump(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<uniprot xmlns="http://uniprot.org/uniprot" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
` + strings.Join(entries, "") + `<copyright>
Copyrighted by the UniProt Consortium
</copyright>
</uniprot>
`
}
