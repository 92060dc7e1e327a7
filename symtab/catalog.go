package symtab

import "github.com/logicossoftware/go-kfx/ion"

// Shared catalog identity. The catalog is the YJ_symbols shared table as
// imported by Kindle readers; ids are fixed by that table and must never be
// renumbered.
const (
	CatalogName    = "YJ_symbols"
	CatalogVersion = 10
	CatalogMaxID   = ion.SymbolID(859)

	// LocalMinID is the first id handed out to document symbols.
	LocalMinID = CatalogMaxID + 1
)

// Style properties.
const (
	Language            ion.SymbolID = 10
	FontFamily          ion.SymbolID = 11
	FontStyle           ion.SymbolID = 12
	FontWeight          ion.SymbolID = 13
	FontSize            ion.SymbolID = 16
	TextColor           ion.SymbolID = 19
	TextBackgroundColor ion.SymbolID = 21
	Underline           ion.SymbolID = 23
	Strikethrough       ion.SymbolID = 27
	Letterspacing       ion.SymbolID = 32
	Wordspacing         ion.SymbolID = 33
	TextAlignment       ion.SymbolID = 34
	TextIndent          ion.SymbolID = 36
	TextTransform       ion.SymbolID = 41
	LineHeight          ion.SymbolID = 42
	BaselineStyle       ion.SymbolID = 44
	Nowrap              ion.SymbolID = 45
	MarginTop           ion.SymbolID = 47
	MarginLeft          ion.SymbolID = 48
	MarginBottom        ion.SymbolID = 49
	MarginRight         ion.SymbolID = 50
	PaddingTop          ion.SymbolID = 52
	PaddingRight        ion.SymbolID = 53
	PaddingBottom       ion.SymbolID = 54
	PaddingLeft         ion.SymbolID = 55
	Width               ion.SymbolID = 56
	Height              ion.SymbolID = 57
	MaxWidth            ion.SymbolID = 65
	FillOpacity         ion.SymbolID = 72
	FontVariant         ion.SymbolID = 583
	Overline            ion.SymbolID = 554
)

// Property values and units.
const (
	Left         ion.SymbolID = 59
	Right        ion.SymbolID = 61
	Unit         ion.SymbolID = 306
	Value        ion.SymbolID = 307
	UnitEm       ion.SymbolID = 308
	UnitEx       ion.SymbolID = 309
	UnitRatio    ion.SymbolID = 310
	UnitPct      ion.SymbolID = 314
	UnitCm       ion.SymbolID = 315
	UnitMm       ion.SymbolID = 316
	UnitIn       ion.SymbolID = 317
	UnitPt       ion.SymbolID = 318
	UnitRem      ion.SymbolID = 505
	Center       ion.SymbolID = 320
	Justify      ion.SymbolID = 321
	Solid        ion.SymbolID = 328
	ListDisc     ion.SymbolID = 340
	ListDecimal  ion.SymbolID = 343
	None         ion.SymbolID = 349
	Normal       ion.SymbolID = 350
	Weight100    ion.SymbolID = 355
	Weight200    ion.SymbolID = 356
	Weight300    ion.SymbolID = 357
	Weight500    ion.SymbolID = 359
	Weight600    ion.SymbolID = 360
	Bold         ion.SymbolID = 361
	Weight800    ion.SymbolID = 362
	Weight900    ion.SymbolID = 363
	SmallCaps    ion.SymbolID = 369
	Superscript  ion.SymbolID = 370
	Subscript    ion.SymbolID = 371
	Uppercase    ion.SymbolID = 372
	Lowercase    ion.SymbolID = 373
	Titlecase    ion.SymbolID = 374
	Oblique      ion.SymbolID = 381
	Italic       ion.SymbolID = 382
	Auto         ion.SymbolID = 383
	LTR          ion.SymbolID = 376
	Enabled      ion.SymbolID = 441
	HorizontalTB ion.SymbolID = 557
)

// Content structure fields.
const (
	ID               ion.SymbolID = ion.SymName
	PageTemplates    ion.SymbolID = 141
	StyleEvents      ion.SymbolID = 142
	Offset           ion.SymbolID = 143
	Length           ion.SymbolID = 144
	Content          ion.SymbolID = 145
	ContentList      ion.SymbolID = 146
	EID              ion.SymbolID = 155
	Style            ion.SymbolID = 157
	Type             ion.SymbolID = 159
	Format           ion.SymbolID = 161
	MIME             ion.SymbolID = 162
	ExternalResource ion.SymbolID = 164
	Location         ion.SymbolID = 165
	ReadingOrders    ion.SymbolID = 169
	Sections         ion.SymbolID = 170
	StyleName        ion.SymbolID = 173
	SectionName      ion.SymbolID = 174
	ResourceName     ion.SymbolID = 175
	StoryName        ion.SymbolID = 176
	ReadingOrderName ion.SymbolID = 178
	LinkTo           ion.SymbolID = 179
	AnchorName       ion.SymbolID = 180
	Contains         ion.SymbolID = 181
	Locations        ion.SymbolID = 182
	Position         ion.SymbolID = 183
	PID              ion.SymbolID = 184
	PositionEID      ion.SymbolID = 185
	URI              ion.SymbolID = 186
	AltText          ion.SymbolID = 584
	ContentRole      ion.SymbolID = 790
	TextOffset       ion.SymbolID = 403
	ListStyle        ion.SymbolID = 100
	ColumnCount      ion.SymbolID = 112
	Direction        ion.SymbolID = 192
	SectionWidth     ion.SymbolID = 66
	SectionHeight    ion.SymbolID = 67
	Layout           ion.SymbolID = 156
	ScaleFit         ion.SymbolID = 326
	Selection        ion.SymbolID = 436
	SpacingBase      ion.SymbolID = 477
	WritingMode      ion.SymbolID = 560
)

// Navigation.
const (
	TOC              ion.SymbolID = 212
	CoverPage        ion.SymbolID = 233
	NavType          ion.SymbolID = 235
	Landmarks        ion.SymbolID = 236
	LandmarkType     ion.SymbolID = 238
	NavContainerName ion.SymbolID = 239
	Representation   ion.SymbolID = 241
	Label            ion.SymbolID = 244
	TargetPosition   ion.SymbolID = 246
	Entries          ion.SymbolID = 247
	NavContainers    ion.SymbolID = 392
	NavUnit          ion.SymbolID = 393
	Bodymatter       ion.SymbolID = 406
)

// Fragment types and their payload fields.
const (
	ContainerList         ion.SymbolID = 252
	EntityDependencies    ion.SymbolID = 253
	MandatoryDependencies ion.SymbolID = 254
	Metadata              ion.SymbolID = 258
	Storyline             ion.SymbolID = 259
	Section               ion.SymbolID = 260
	PositionMap           ion.SymbolID = 264
	PositionIDMap         ion.SymbolID = 265
	Anchor                ion.SymbolID = 266
	Text                  ion.SymbolID = 269
	Container             ion.SymbolID = 270
	Image                 ion.SymbolID = 271
	List                  ion.SymbolID = 276
	ListItem              ion.SymbolID = 277
	PNG                   ion.SymbolID = 284
	JPG                   ion.SymbolID = 285
	GIF                   ion.SymbolID = 286
	Null                  ion.SymbolID = 348
	Default               ion.SymbolID = 351
	BookNavigation        ion.SymbolID = 389
	NavContainer          ion.SymbolID = 391
	ContainerID           ion.SymbolID = 409
	ComprType             ion.SymbolID = 410
	DRMScheme             ion.SymbolID = 411
	ChunkSize             ion.SymbolID = 412
	IndexTabOffset        ion.SymbolID = 413
	IndexTabLength        ion.SymbolID = 414
	DocSymbolOffset       ion.SymbolID = 415
	DocSymbolLength       ion.SymbolID = 416
	RawMedia              ion.SymbolID = 417
	ContainerEntityMap    ion.SymbolID = 419
	ResourceWidth         ion.SymbolID = 422
	ResourceHeight        ion.SymbolID = 423
	CoverImage            ion.SymbolID = 424
	BookMetadata          ion.SymbolID = 490
	CategorisedMetadata   ion.SymbolID = 491
	Key                   ion.SymbolID = 492
	Category              ion.SymbolID = 495
	DocumentData          ion.SymbolID = 538
	LocationMap           ion.SymbolID = 550
	ContentFeatures       ion.SymbolID = 585
	Namespace             ion.SymbolID = 586
	MajorVersion          ion.SymbolID = 587
	MinorVersion          ion.SymbolID = 588
	VersionInfo           ion.SymbolID = 589
	Features              ion.SymbolID = 590
	FormatCapabilities    ion.SymbolID = 593
	FCapabilitiesOffset   ion.SymbolID = 594
	FCapabilitiesLength   ion.SymbolID = 595
	AuxiliaryData         ion.SymbolID = 597
	KfxID                 ion.SymbolID = 598
)

// systemNames is the Ion 1.0 system symbol table.
var systemNames = [...]string{
	1: "$ion",
	2: "$ion_1_0",
	3: "$ion_symbol_table",
	4: "name",
	5: "version",
	6: "imports",
	7: "symbols",
	8: "max_id",
	9: "$ion_shared_symbol_table",
}

// catalogNames holds the named entries of YJ_symbols v10. Ids inside the
// catalog range without a name here are still valid and resolve as $NNN.
var catalogNames = map[ion.SymbolID]string{
	10: "language", 11: "font_family", 12: "font_style", 13: "font_weight",
	16: "font_size", 19: "text_color", 21: "text_background_color",
	23: "underline", 27: "strikethrough", 31: "baseline_shift",
	32: "letterspacing", 33: "wordspacing", 34: "text_alignment",
	36: "text_indent", 37: "left_indent", 38: "right_indent",
	39: "space_before", 40: "space_after", 41: "text_transform",
	42: "line_height", 44: "baseline_style", 45: "nowrap",
	46: "margin", 47: "margin_top", 48: "margin_left", 49: "margin_bottom", 50: "margin_right",
	51: "padding", 52: "padding_top", 53: "padding_right", 54: "padding_bottom", 55: "padding_left",
	56: "width", 57: "height", 58: "top", 59: "left", 60: "bottom", 61: "right",
	65: "max_width", 70: "fill_color", 72: "fill_opacity",
	83: "border_color", 88: "border_style", 93: "border_weight",
	98: "transform", 100: "list_style", 112: "column_count",
	125: "dropcap_lines", 126: "dropcap_chars", 127: "hyphens",
	131: "first", 132: "last", 140: "float", 141: "page_templates",
	142: "style_events", 143: "offset", 144: "length", 145: "content", 146: "content_list",
	148: "table_column_span", 149: "table_row_span", 151: "header",
	153: "title", 154: "description", 155: "id",
	156: "layout", 157: "style", 158: "parent_style", 159: "type",
	161: "format", 162: "mime", 163: "target", 164: "external_resource", 165: "location",
	169: "reading_orders", 170: "sections", 173: "style_name", 174: "section_name",
	175: "resource_name", 176: "story_name", 178: "reading_order_name",
	179: "link_to", 180: "anchor_name", 181: "contains", 182: "locations",
	183: "position", 184: "pid", 185: "eid", 186: "uri", 192: "direction",
	212: "toc", 215: "orientation", 216: "binding_direction", 219: "issue_date",
	222: "author", 223: "ISBN", 224: "ASIN", 232: "publisher", 233: "cover_page",
	235: "nav_type", 236: "landmarks", 237: "page_list", 238: "landmark_type",
	239: "nav_container_name", 240: "nav_unit_name", 241: "representation",
	244: "label", 245: "icon", 246: "target_position", 247: "entries", 248: "entry_set",
	251: "cde_content_type", 252: "container_list", 253: "entity_dependencies",
	254: "mandatory_dependencies", 255: "optional_dependencies",
	257: "inherit", 258: "metadata", 259: "storyline", 260: "section",
	264: "position_map", 265: "position_id_map", 266: "anchor",
	269: "text", 270: "container", 271: "image", 272: "kvg", 273: "shape",
	274: "plugin", 275: "knockout", 276: "list", 277: "listitem",
	278: "table", 279: "table_row", 280: "sidebar", 281: "footnote", 282: "figure", 283: "inline",
	284: "png", 285: "jpg", 286: "gif", 287: "pobject",
	306: "unit", 307: "value", 308: "em", 309: "ex", 310: "ratio", 314: "percent",
	315: "cm", 316: "mm", 317: "in", 318: "pt",
	320: "center", 321: "justify", 322: "horizontal", 323: "vertical",
	340: "disc", 343: "decimal",
	324: "fixed", 325: "overflow", 326: "scale_fit", 327: "radial", 328: "solid",
	348: "null", 349: "none", 350: "normal", 351: "default", 352: "always", 353: "avoid",
	355: "thin", 356: "ultra_light", 357: "light", 359: "medium", 360: "semibold",
	361: "bold", 362: "ultra_bold", 363: "heavy",
	369: "small_caps", 370: "superscript", 371: "subscript",
	372: "uppercase", 373: "lowercase", 374: "titlecase",
	376: "ltr", 377: "rtl",
	381: "oblique", 382: "italic", 383: "auto", 385: "portrait", 386: "landscape",
	389: "book_navigation", 390: "section_navigation", 391: "nav_container",
	392: "nav_containers", 393: "nav_unit", 394: "conditional_nav_group_unit",
	397: "titlepage", 398: "acknowledgements", 399: "preface",
	405: "frontmatter", 406: "bodymatter", 407: "backmatter",
	409: "bcContId", 410: "bcComprType", 411: "bcDRMScheme", 412: "bcChunkSize",
	413: "bcIndexTabOffset", 414: "bcIndexTabLength",
	415: "bcDocSymbolOffset", 416: "bcDocSymbolLength",
	436: "selection", 441: "enabled", 477: "spacing_percent_base",
	417: "bcRawMedia", 418: "bcRawFont", 419: "container_entity_map",
	422: "resource_width", 423: "resource_height", 424: "cover_image", 425: "page_progression_direction",
	464: "volume_label", 465: "parent_asin", 466: "asset_id", 467: "revision_id",
	490: "book_metadata", 491: "categorised_metadata", 492: "key", 493: "priority",
	494: "refines", 495: "category", 505: "rem",
	538: "document_data", 550: "location_map", 554: "overline",
	557: "horizontal_tb", 560: "writing_mode",
	583: "font_variant", 584: "alt_text", 585: "content_features",
	586: "namespace", 587: "major_version", 588: "minor_version",
	589: "version_info", 590: "features",
	593: "format_capabilities", 594: "bcFCapabilitiesOffset", 595: "bcFCapabilitiesLength",
	597: "auxiliary_data", 598: "kfx_id", 601: "render", 602: "block",
	680: "start", 681: "end", 790: "content_role",
}

// catalogIDs is the reverse of catalogNames. Both tables are read-only after
// package initialisation.
var catalogIDs = func() map[string]ion.SymbolID {
	m := make(map[string]ion.SymbolID, len(catalogNames))
	for id, name := range catalogNames {
		m[name] = id
	}
	return m
}()

// CatalogSymbolName returns the name for id, or "" when id is not a named
// catalog or system symbol.
func CatalogSymbolName(id ion.SymbolID) string {
	if int(id) < len(systemNames) {
		return systemNames[id]
	}
	return catalogNames[id]
}

// CatalogID returns the catalog id for name.
func CatalogID(name string) (ion.SymbolID, bool) {
	id, ok := catalogIDs[name]
	return id, ok
}
