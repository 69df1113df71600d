package utils

import "golang.org/x/net/html"

// StripComments removes every comment node below n.
func StripComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			StripComments(c)
		}
		c = next
	}
}
