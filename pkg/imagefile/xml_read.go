package imagefile

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
)

// parseTree rebuilds the element tree from the file's XML section. The
// tree is constructed through the normal node constructors so every
// invariant is re-checked on the way in; anything malformed is a
// BadXMLFormat error.
func parseTree(imf *ImageFile, data []byte) (*node.Structure, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, e57.Newf(e57.BadXMLFormat, "parsing XML section: %v", err)
	}
	rootEl, err := xmlquery.Query(doc, "/"+rootElement)
	if err != nil || rootEl == nil {
		return nil, e57.Newf(e57.BadXMLFormat, "no %s document element", rootElement)
	}
	if rootEl.SelectAttr("type") != node.KindStructure.String() {
		return nil, e57.Newf(e57.BadXMLFormat, "%s is not a structure", rootElement)
	}

	root, err := node.NewStructure(imf)
	if err != nil {
		return nil, err
	}
	if err := parseChildren(imf, root, rootEl); err != nil {
		return nil, err
	}
	node.AttachRoot(root)
	return root, nil
}

func parseChildren(imf *ImageFile, parent *node.Structure, el *xmlquery.Node) error {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		child, err := parseNode(imf, c)
		if err != nil {
			return err
		}
		if err := parent.Set(c.Data, child); err != nil {
			return e57.Newf(e57.BadXMLFormat, "element %q: %v", c.Data, err)
		}
	}
	return nil
}

func parseNode(imf *ImageFile, el *xmlquery.Node) (node.Node, error) {
	switch el.SelectAttr("type") {
	case node.KindInteger.String():
		minimum, err := attrInt(el, "minimum")
		if err != nil {
			return nil, err
		}
		maximum, err := attrInt(el, "maximum")
		if err != nil {
			return nil, err
		}
		value, err := textInt(el)
		if err != nil {
			return nil, err
		}
		n, err := node.NewInteger(imf, value, minimum, maximum)
		if err != nil {
			return nil, e57.Newf(e57.BadXMLFormat, "element %q: %v", el.Data, err)
		}
		return n, nil

	case node.KindScaledInteger.String():
		minimum, err := attrInt(el, "minimum")
		if err != nil {
			return nil, err
		}
		maximum, err := attrInt(el, "maximum")
		if err != nil {
			return nil, err
		}
		scale, err := attrFloat(el, "scale")
		if err != nil {
			return nil, err
		}
		offset, err := attrFloat(el, "offset")
		if err != nil {
			return nil, err
		}
		raw, err := textInt(el)
		if err != nil {
			return nil, err
		}
		n, err := node.NewScaledInteger(imf, raw, minimum, maximum, scale, offset)
		if err != nil {
			return nil, e57.Newf(e57.BadXMLFormat, "element %q: %v", el.Data, err)
		}
		return n, nil

	case node.KindFloat.String():
		precision := node.Double
		switch el.SelectAttr("precision") {
		case "single":
			precision = node.Single
		case "double", "":
		default:
			return nil, e57.Newf(e57.BadXMLFormat,
				"element %q has unknown precision %q", el.Data, el.SelectAttr("precision"))
		}
		minimum, err := attrFloat(el, "minimum")
		if err != nil {
			return nil, err
		}
		maximum, err := attrFloat(el, "maximum")
		if err != nil {
			return nil, err
		}
		value, err := textFloat(el)
		if err != nil {
			return nil, err
		}
		n, err := node.NewFloat(imf, value, precision, minimum, maximum)
		if err != nil {
			return nil, e57.Newf(e57.BadXMLFormat, "element %q: %v", el.Data, err)
		}
		return n, nil

	case node.KindString.String():
		n, err := node.NewString(imf, el.InnerText())
		if err != nil {
			return nil, e57.Newf(e57.BadXMLFormat, "element %q: %v", el.Data, err)
		}
		return n, nil

	case node.KindStructure.String():
		s, err := node.NewStructure(imf)
		if err != nil {
			return nil, err
		}
		if err := parseChildren(imf, s, el); err != nil {
			return nil, err
		}
		return s, nil

	case node.KindVector.String():
		hetero := el.SelectAttr("allowHeterogeneousChildren") == "1"
		v, err := node.NewVector(imf, hetero)
		if err != nil {
			return nil, err
		}
		for c := el.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			child, err := parseNode(imf, c)
			if err != nil {
				return nil, err
			}
			if err := v.Append(child); err != nil {
				return nil, e57.Newf(e57.BadXMLFormat, "vector %q: %v", el.Data, err)
			}
		}
		return v, nil

	case node.KindCompressedVector.String():
		var protoEl *xmlquery.Node
		for c := el.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode && c.Data == "prototype" {
				protoEl = c
				break
			}
		}
		if protoEl == nil {
			return nil, e57.Newf(e57.BadXMLFormat, "compressed vector %q has no prototype", el.Data)
		}
		proto, err := node.NewStructure(imf)
		if err != nil {
			return nil, err
		}
		if err := parseChildren(imf, proto, protoEl); err != nil {
			return nil, err
		}
		cv, err := node.NewCompressedVector(imf, proto)
		if err != nil {
			return nil, e57.Newf(e57.BadXMLFormat, "compressed vector %q: %v", el.Data, err)
		}
		off, err := attrInt(el, "fileOffset")
		if err != nil {
			return nil, err
		}
		count, err := attrInt(el, "recordCount")
		if err != nil {
			return nil, err
		}
		if off >= 0 {
			if err := cv.CommitSection(off, count); err != nil {
				return nil, e57.Newf(e57.BadXMLFormat, "compressed vector %q: %v", el.Data, err)
			}
		} else if count != 0 {
			return nil, e57.Newf(e57.BadXMLFormat,
				"compressed vector %q declares %d records without a section", el.Data, count)
		}
		return cv, nil

	default:
		return nil, e57.Newf(e57.BadXMLFormat,
			"element %q has unknown type %q", el.Data, el.SelectAttr("type"))
	}
}

func attrInt(el *xmlquery.Node, name string) (int64, error) {
	raw := el.SelectAttr(name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, e57.Newf(e57.BadXMLFormat, "element %q attribute %q: %q", el.Data, name, raw)
	}
	return v, nil
}

func attrFloat(el *xmlquery.Node, name string) (float64, error) {
	raw := el.SelectAttr(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, e57.Newf(e57.BadXMLFormat, "element %q attribute %q: %q", el.Data, name, raw)
	}
	return v, nil
}

func textInt(el *xmlquery.Node) (int64, error) {
	raw := strings.TrimSpace(el.InnerText())
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, e57.Newf(e57.BadXMLFormat, "element %q value %q", el.Data, raw)
	}
	return v, nil
}

func textFloat(el *xmlquery.Node) (float64, error) {
	raw := strings.TrimSpace(el.InnerText())
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, e57.Newf(e57.BadXMLFormat, "element %q value %q", el.Data, raw)
	}
	return v, nil
}
