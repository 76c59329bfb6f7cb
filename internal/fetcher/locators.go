package fetcher

import "github.com/maltedev/phosphosite-scraper/internal/extract"

const (
	noRecordSelector = "p.noRecordFoundText"
	noRecordText     = "No Protein Record found !!"
	breadcrumbSel    = "#titleMainHeader"

	altNamesLabel    = "Alt. Names/Synonyms:"
	geneSymbolsLabel = "Gene Symbols:"
)

var infoTabLocators = []extract.Locator{
	extract.Selector("xpath=//*[@id='tabs1']/ul/li[1]/a"),
	extract.Selector("xpath=//a[contains(text(), 'Protein Information')]"),
	extract.Selector("xpath=//a[contains(@href, 'proteinInfo')]"),
	extract.Selector("css=a[href*='proteinInfo']"),
	extract.Selector("css=a:has-text('Protein Information')"),
}

// labeledCell locates the table cell holding a bold label and its value.
func labeledCell(label string) []extract.Locator {
	return []extract.Locator{
		extract.Parent{Of: extract.Selector("xpath=//span[@class='bold02' and contains(text(), '" + label + "')]")},
		extract.Parent{Of: extract.Selector("xpath=//span[contains(text(), '" + label + "')]")},
		extract.Selector("xpath=//td[contains(.//span, '" + label + "')]"),
		extract.Document{Query: "span.bold02:contains('" + label + "')", Parent: true},
	}
}

var (
	altNamesLocators    = labeledCell(altNamesLabel)
	geneSymbolsLocators = labeledCell(geneSymbolsLabel)

	externalIDLocators = []extract.Locator{
		extract.Selector("xpath=//span[contains(text(), 'Reference #:')]/following-sibling::a"),
		extract.Selector("xpath=//span[@class='bold02' and contains(text(), 'Reference #:')]/following-sibling::a"),
		extract.Selector("xpath=//a[contains(@href, 'uniprot.org')]"),
		extract.Selector("css=a[href*='uniprot.org']"),
		extract.Document{Query: "a[href*='uniprot.org']"},
	}
)
