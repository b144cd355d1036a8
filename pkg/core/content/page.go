package content

// Page is one of the portfolio's top-level views.
type Page int

const (
	PageAbout Page = iota
	PageProjects
	PageLinks
)

// Pages lists the views in navigation order.
var Pages = []Page{PageAbout, PageProjects, PageLinks}

func (p Page) String() string {
	switch p {
	case PageProjects:
		return "Projects"
	case PageLinks:
		return "Links"
	default:
		return "About"
	}
}

// Path returns the route that renders the page.
func (p Page) Path() string {
	switch p {
	case PageProjects:
		return "/projects"
	case PageLinks:
		return "/links"
	default:
		return "/"
	}
}

// ShowsBadge reports whether the 3D badge is mounted on the page.
func (p Page) ShowsBadge() bool {
	return p == PageAbout
}

// PageForPath maps a route to its page. Unknown routes map to About.
func PageForPath(path string) Page {
	for _, p := range Pages {
		if p.Path() == path {
			return p
		}
	}
	return PageAbout
}
