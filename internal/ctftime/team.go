package ctftime

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// TeamEvents fetches the planned-events list from a team's page. The list
// is not exposed by the JSON API, so this parses the first table on the
// page: one row per planned event, first cell holding the event link.
// Returns ErrNotFound for unknown teams; a team page without a table is an
// empty plan, not an error.
func (c *Client) TeamEvents(ctx context.Context, teamID string) ([]PlanEntry, error) {
	body, status, err := c.get(ctx, "/team/"+teamID)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("ctftime: team %s returned %d", teamID, status)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse team page %s: %w", teamID, err)
	}

	table := findFirst(doc, "table")
	if table == nil {
		c.logger.Warn("No planned events table on team page", "team_id", teamID)
		return nil, nil
	}

	var entries []PlanEntry
	for _, row := range findAll(table, "tr") {
		cells := findAll(row, "td")
		if len(cells) < 2 {
			continue // header row
		}
		link := findFirst(cells[0], "a")
		if link == nil {
			continue
		}
		href := attr(link, "href")
		if href == "" {
			continue
		}
		parts := strings.Split(strings.TrimRight(href, "/"), "/")
		entry := PlanEntry{
			EventID: parts[len(parts)-1],
			Name:    strings.TrimSpace(text(link)),
			Date:    strings.TrimSpace(text(cells[1])),
			URL:     c.baseURL + href,
		}
		if entry.EventID != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Minimal DOM helpers over x/net/html
// --------------------------------------------------------------------------

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && cur.Data == tag {
			nodes = append(nodes, cur)
			return
		}
		for child := cur.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child)
	}
	return nodes
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			sb.WriteString(cur.Data)
		}
		for child := cur.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
