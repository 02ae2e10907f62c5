// Package corpus writes crawl output to a blob store and reads it back as documents.
//
// Layout under the store root:
//
//	page_N.txt      one file per page: "URL: u\nTitle: t\n\n" then the text
//	all_data.json   every page as {url, title, content}
//	<dump file>     every page concatenated with separators
//	<url list file> every discovered URL, sorted, one per line
//	*.pdf, *.pptx   downloaded documents under their basename
package corpus

// AllDataFile holds every crawled page as JSON.
const AllDataFile = "all_data.json"

// Config names the aggregate files written at the end of a crawl.
type Config struct {
	DumpFile    string
	URLListFile string
}

func (c Config) withDefaults() Config {
	if c.DumpFile == "" {
		c.DumpFile = "all_texts.txt"
	}
	if c.URLListFile == "" {
		c.URLListFile = "urls.txt"
	}
	return c
}
