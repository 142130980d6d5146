package notion

// Notion colors used by the publisher.
const (
	ColorDefault        = "default"
	ColorGray           = "gray"
	ColorBlueBackground = "blue_background"
)

// RichText is a text run.
type RichText struct {
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// Text is the content of a text run.
type Text struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink target.
type Link struct {
	URL string `json:"url"`
}

// Annotations style a text run.
type Annotations struct {
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
	Code   bool   `json:"code,omitempty"`
	Color  string `json:"color,omitempty"`
}

// PlainText returns a single unstyled text run.
func PlainText(content string) []RichText {
	return []RichText{{Type: "text", Text: &Text{Content: content}}}
}

// LinkText returns a single text run linking to url.
func LinkText(content, url string) []RichText {
	return []RichText{{Type: "text", Text: &Text{Content: content, Link: &Link{URL: url}}}}
}

// Block is a page content block. Exactly one of the typed fields is set,
// matching Type.
type Block struct {
	Object           string     `json:"object"`
	Type             string     `json:"type"`
	Paragraph        *TextBlock `json:"paragraph,omitempty"`
	Heading2         *TextBlock `json:"heading_2,omitempty"`
	BulletedListItem *TextBlock `json:"bulleted_list_item,omitempty"`
	Toggle           *TextBlock `json:"toggle,omitempty"`
	Callout          *Callout   `json:"callout,omitempty"`
	Divider          *struct{}  `json:"divider,omitempty"`
}

// TextBlock is the body shared by text-like blocks.
type TextBlock struct {
	RichText []RichText `json:"rich_text"`
	Color    string     `json:"color,omitempty"`
	Children []Block    `json:"children,omitempty"`
}

// Callout is a highlighted block with an icon.
type Callout struct {
	RichText []RichText `json:"rich_text"`
	Icon     *Icon      `json:"icon,omitempty"`
	Color    string     `json:"color,omitempty"`
}

// Icon is an emoji icon.
type Icon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// NewParagraph builds a paragraph block.
func NewParagraph(text []RichText) Block {
	return Block{Object: "block", Type: "paragraph", Paragraph: &TextBlock{RichText: text}}
}

// NewHeading2 builds a level-two heading.
func NewHeading2(title string) Block {
	return Block{Object: "block", Type: "heading_2", Heading2: &TextBlock{RichText: PlainText(title)}}
}

// NewBullet builds a bulleted list item.
func NewBullet(text []RichText) Block {
	return Block{Object: "block", Type: "bulleted_list_item", BulletedListItem: &TextBlock{RichText: text}}
}

// NewToggle builds a collapsible block holding children.
func NewToggle(title string, children []Block) Block {
	return Block{Object: "block", Type: "toggle", Toggle: &TextBlock{RichText: PlainText(title), Children: children}}
}

// NewCallout builds a callout with an emoji icon.
func NewCallout(text []RichText, emoji, color string) Block {
	return Block{Object: "block", Type: "callout", Callout: &Callout{
		RichText: text,
		Icon:     &Icon{Type: "emoji", Emoji: emoji},
		Color:    color,
	}}
}

// NewDivider builds a horizontal rule.
func NewDivider() Block {
	return Block{Object: "block", Type: "divider", Divider: &struct{}{}}
}

// Property is a database page property value. Exactly one field is set.
type Property struct {
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	Date        *Date          `json:"date,omitempty"`
	URL         *string        `json:"url,omitempty"`
}

// SelectOption names a select or multi-select option.
type SelectOption struct {
	Name string `json:"name"`
}

// Date is a date property value in ISO 8601.
type Date struct {
	Start string `json:"start"`
}

// Page is the subset of a created page the publisher keeps.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type createPageRequest struct {
	Parent     parent              `json:"parent"`
	Properties map[string]Property `json:"properties"`
}

type appendChildrenRequest struct {
	Children []Block `json:"children"`
}

type apiError struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
