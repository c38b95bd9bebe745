package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses a node's text down to a single printable line.
func CleanText(node *html.Node) string {
	text := GetText(node)
	text = removeNonPrintable(text)
	text = strings.Trim(text, " \t\n")
	return innerWhitespace.ReplaceAllString(text, " ")
}

// MetaContent returns the content attribute of <meta name=...>, or ""
// when the document carries no such tag.
func MetaContent(doc *goquery.Document, name string) string {
	return doc.Find("meta[name=" + name + "]").AttrOr("content", "")
}

// FormValues collects every named input of a form selection into a
// flat field map, keeping prefilled and hidden values intact so a
// submission can overwrite only the fields it cares about.
func FormValues(form *goquery.Selection) map[string]string {
	values := map[string]string{}
	form.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		values[name] = field.AttrOr("value", "")
	})
	return values
}
