package capabilities

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

const feedCallTimeout = 20 * time.Second

// newFeedHandle exposes RSS/Atom parsing to tasks declaring "feed".
func newFeedHandle() Handle {
	parser := gofeed.NewParser()

	return Handle{
		"parse": func(url string) (map[string]interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), feedCallTimeout)
			defer cancel()
			feed, err := parser.ParseURLWithContext(url, ctx)
			if err != nil {
				return nil, fmt.Errorf("feed: %s: %w", url, err)
			}
			items := make([]map[string]interface{}, 0, len(feed.Items))
			for _, item := range feed.Items {
				entry := map[string]interface{}{
					"title":       item.Title,
					"link":        item.Link,
					"description": item.Description,
				}
				if item.PublishedParsed != nil {
					entry["published"] = item.PublishedParsed.UTC().Format(time.RFC3339)
				}
				items = append(items, entry)
			}
			return map[string]interface{}{
				"title":       feed.Title,
				"description": feed.Description,
				"link":        feed.Link,
				"items":       items,
			}, nil
		},
	}
}
