package metadata

import (
	"fmt"
	"reflect"
	"strings"
)

// PathSeparator separates segments of a property path such as "customer.address.city".
const PathSeparator = "."

// PropertyKind classifies how a property participates in path navigation.
type PropertyKind int

const (
	// KindScalar is a terminal attribute (string, number, time, ...).
	KindScalar PropertyKind = iota
	// KindReference is a to-one navigation to another entity.
	KindReference
	// KindCollection is a to-many navigation to another entity.
	KindCollection
	// KindEmbedded is an embedded struct whose fields are stored on the owner.
	KindEmbedded
)

func (k PropertyKind) String() string {
	switch k {
	case KindReference:
		return "reference"
	case KindCollection:
		return "collection"
	case KindEmbedded:
		return "embedded"
	default:
		return "scalar"
	}
}

// EntityMetadata holds metadata information about a filterable entity
type EntityMetadata struct {
	EntityType    reflect.Type
	EntityName    string
	EntitySetName string
	TableName     string // Database table name (computed once, respects custom TableName() methods)
	Properties    []PropertyMetadata
	KeyProperties []PropertyMetadata

	navigationTargetIndex map[string]*EntityMetadata // Index for fast navigation target lookup by EntityName or EntitySetName
}

// PropertyMetadata holds metadata information about an entity property
type PropertyMetadata struct {
	Name                      string
	Type                      reflect.Type
	FieldName                 string
	ColumnName                string // Database column name (respects gorm column: and filter:"column:..." tags)
	IsKey                     bool
	JsonName                  string
	GormTag                   string
	FilterTag                 string
	IsNavigationProp          bool
	NavigationTarget          string // Entity type name for navigation properties
	NavigationTargetTableName string
	ForeignKeyColumnName      string
	NavigationIsArray         bool // True for collection navigation properties
	IsComplexType             bool // True if this property is an embedded struct
	EmbeddedPrefix            string
	ComplexTypeFields         map[string]*PropertyMetadata
	// Referential constraints for navigation properties
	ReferentialConstraints map[string]string // Maps dependent property to principal property
	Nullable               bool
}

// Kind reports whether the property is a scalar, a reference, a collection or an embedded struct.
func (property *PropertyMetadata) Kind() PropertyKind {
	switch {
	case property == nil:
		return KindScalar
	case property.IsNavigationProp && property.NavigationIsArray:
		return KindCollection
	case property.IsNavigationProp:
		return KindReference
	case property.IsComplexType:
		return KindEmbedded
	default:
		return KindScalar
	}
}

// AnalyzeEntity extracts metadata from a Go struct
func AnalyzeEntity(entity interface{}) (*EntityMetadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity must be a struct, got nil")
	}
	entityType := reflect.TypeOf(entity)

	// Handle pointer types
	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}

	if entityType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct, got %s", entityType.Kind())
	}

	metadata := &EntityMetadata{
		EntityType:    entityType,
		EntityName:    entityType.Name(),
		EntitySetName: getEntitySetName(entityType),
		TableName:     getTableNameFromReflectType(entityType),
		Properties:    make([]PropertyMetadata, 0, entityType.NumField()),
	}

	for i := 0; i < entityType.NumField(); i++ {
		field := entityType.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		property := analyzeField(field)
		if property.IsKey {
			metadata.KeyProperties = append(metadata.KeyProperties, property)
		}
		metadata.Properties = append(metadata.Properties, property)
	}

	if len(metadata.KeyProperties) == 0 {
		// Auto-detect key if field name is "ID"
		for i := range metadata.Properties {
			if metadata.Properties[i].Name == "ID" {
				metadata.Properties[i].IsKey = true
				metadata.KeyProperties = append(metadata.KeyProperties, metadata.Properties[i])
				break
			}
		}
	}

	if len(metadata.KeyProperties) == 0 {
		return nil, fmt.Errorf("entity %s must have at least one key property (use `filter:\"key\"` tag or name field 'ID')", metadata.EntityName)
	}

	return metadata, nil
}

// analyzeField analyzes a single struct field and creates a PropertyMetadata
func analyzeField(field reflect.StructField) PropertyMetadata {
	property := PropertyMetadata{
		Name:      field.Name,
		Type:      field.Type,
		FieldName: field.Name,
		JsonName:  getJsonName(field),
		GormTag:   field.Tag.Get("gorm"),
		FilterTag: field.Tag.Get("filter"),
	}

	analyzeNavigationProperty(&property, field)
	property.ColumnName = getColumnNameFromProperty(&property)

	for _, part := range strings.Split(property.FilterTag, ",") {
		if strings.TrimSpace(part) == "key" {
			property.IsKey = true
		}
	}
	if strings.Contains(property.GormTag, "primaryKey") || strings.Contains(property.GormTag, "primary_key") {
		property.IsKey = true
	}

	property.Nullable = !property.IsKey && isTypeNullable(field.Type) && !strings.Contains(property.GormTag, "not null")

	return property
}

// analyzeNavigationProperty determines if a field is a navigation property or complex type
func analyzeNavigationProperty(property *PropertyMetadata, field reflect.StructField) {
	fieldType := field.Type
	isSlice := fieldType.Kind() == reflect.Slice
	if isSlice {
		fieldType = fieldType.Elem()
	}

	if fieldType.Kind() == reflect.Ptr {
		fieldType = fieldType.Elem()
	}

	if fieldType.Kind() != reflect.Struct {
		return
	}

	gormTag := field.Tag.Get("gorm")
	filterTag := field.Tag.Get("filter")

	hasNavInGorm := strings.Contains(gormTag, "foreignKey") || strings.Contains(gormTag, "references") || strings.Contains(gormTag, "many2many")
	hasNavInFilter := strings.Contains(filterTag, "foreignKey:") || strings.Contains(filterTag, "references:") || strings.Contains(filterTag, "many2many:")

	switch {
	case hasNavInGorm || hasNavInFilter:
		property.IsNavigationProp = true
		property.NavigationTarget = fieldType.Name()
		property.NavigationTargetTableName = getTableNameFromReflectType(fieldType)
		property.NavigationIsArray = isSlice
		property.ForeignKeyColumnName = getForeignKeyColumnName(property)

		if hasNavInFilter {
			property.ReferentialConstraints = extractReferentialConstraints(filterTag, ",")
		} else {
			property.ReferentialConstraints = extractReferentialConstraints(gormTag, ";")
		}
	case strings.Contains(gormTag, "embedded") || strings.Contains(filterTag, "embedded"):
		property.IsComplexType = true
		if strings.Contains(filterTag, "embeddedPrefix:") {
			property.EmbeddedPrefix = extractTagValue(filterTag, ",", "embeddedPrefix:")
		} else {
			property.EmbeddedPrefix = extractTagValue(gormTag, ";", "embeddedPrefix:")
		}
		analyzeComplexTypeFields(property, fieldType)
	}
}

// analyzeComplexTypeFields inspects the fields of an embedded complex type and captures their metadata.
func analyzeComplexTypeFields(property *PropertyMetadata, fieldType reflect.Type) {
	structType := dereferenceType(fieldType)
	if structType.Kind() != reflect.Struct {
		return
	}

	if property.ComplexTypeFields == nil {
		property.ComplexTypeFields = make(map[string]*PropertyMetadata)
	}

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}

		nested := analyzeField(field)
		nested.IsKey = false
		nestedPtr := &nested

		property.ComplexTypeFields[nested.Name] = nestedPtr
		jsonKey := strings.TrimSpace(nested.JsonName)
		if jsonKey != "" && jsonKey != "-" {
			property.ComplexTypeFields[jsonKey] = nestedPtr
		}
	}
}

// extractReferentialConstraints extracts foreignKey/references pairs from a tag.
// Format: "foreignKey:UserID;references:ID" or just "foreignKey:UserID" (references defaults to "ID")
func extractReferentialConstraints(tag, sep string) map[string]string {
	foreignKey := extractTagValue(tag, sep, "foreignKey:")
	if foreignKey == "" {
		return nil
	}
	references := extractTagValue(tag, sep, "references:")
	if references == "" {
		references = "ID"
	}
	return map[string]string{foreignKey: references}
}

// extractTagValue returns the value of the first "prefix..." part of a tag split by sep.
func extractTagValue(tag, sep, prefix string) string {
	for _, part := range strings.Split(tag, sep) {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(part, prefix))
		}
	}
	return ""
}

// getJsonName extracts the JSON field name from struct tags
func getJsonName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag == "" {
		return field.Name
	}
	name := strings.Split(jsonTag, ",")[0]
	if name == "" {
		return field.Name
	}
	return name
}

// pluralize creates a simple pluralized form of the entity name
func pluralize(word string) string {
	if word == "" {
		return word
	}
	switch {
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"), strings.HasSuffix(word, "z"),
		strings.HasSuffix(word, "ch"), strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// isVowel checks if a rune is a vowel
func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// getEntitySetName determines the entity set name for an entity type.
// It first checks if the entity implements an EntitySetName() method,
// similar to how GORM's TableName() works. If not, it falls back to
// pluralizing the entity name.
func getEntitySetName(entityType reflect.Type) string {
	instance := reflect.New(entityType).Interface()
	if named, ok := instance.(interface{ EntitySetName() string }); ok {
		if name := named.EntitySetName(); name != "" {
			return name
		}
	}
	return pluralize(entityType.Name())
}

// isTypeNullable checks if a Go type can represent null values
func isTypeNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// FindProperty returns the property metadata matching the provided name or JSON name.
// Returns nil if no property matches.
func (metadata *EntityMetadata) FindProperty(name string) *PropertyMetadata {
	if metadata == nil {
		return nil
	}

	for i := range metadata.Properties {
		prop := &metadata.Properties[i]
		if prop.Name == name || prop.JsonName == name {
			return prop
		}
	}

	return nil
}

// FindNavigationProperty returns the metadata for the requested navigation property.
// Returns nil if the property does not exist or is not a navigation property.
func (metadata *EntityMetadata) FindNavigationProperty(name string) *PropertyMetadata {
	prop := metadata.FindProperty(name)
	if prop != nil && prop.IsNavigationProp {
		return prop
	}
	return nil
}

// ResolvePropertyPath resolves a property path (e.g., "shippingAddress.city") to the corresponding metadata and embedded prefix.
// Only embedded structs may be traversed; navigation across entities is the pointer package's job.
func (metadata *EntityMetadata) ResolvePropertyPath(path string) (*PropertyMetadata, string, error) {
	if metadata == nil {
		return nil, "", fmt.Errorf("entity metadata is nil")
	}

	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, "", fmt.Errorf("property path cannot be empty")
	}

	segments := strings.Split(trimmedPath, PathSeparator)
	var currentProp *PropertyMetadata
	var prefixBuilder strings.Builder

	for i, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return nil, "", fmt.Errorf("property path '%s' contains an empty segment", trimmedPath)
		}

		if i == 0 {
			currentProp = metadata.FindProperty(segment)
		} else {
			if currentProp == nil || !currentProp.IsComplexType {
				return nil, "", fmt.Errorf("property '%s' is not an embedded type in path '%s'", segments[i-1], trimmedPath)
			}
			prefixBuilder.WriteString(currentProp.EmbeddedPrefix)
			currentProp = currentProp.FindComplexField(segment)
		}

		if currentProp == nil {
			return nil, "", fmt.Errorf("property '%s' not found in path '%s'", segment, trimmedPath)
		}
	}

	return currentProp, prefixBuilder.String(), nil
}

// FindComplexField returns a nested property within a complex type by either struct field name or JSON name.
func (property *PropertyMetadata) FindComplexField(name string) *PropertyMetadata {
	if property == nil || !property.IsComplexType || property.ComplexTypeFields == nil {
		return nil
	}

	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return nil
	}

	return property.ComplexTypeFields[trimmedName]
}

// SetEntitiesRegistry provides access to the registered entity metadata for navigation resolution.
func (metadata *EntityMetadata) SetEntitiesRegistry(entities map[string]*EntityMetadata) {
	if metadata == nil {
		return
	}
	metadata.navigationTargetIndex = make(map[string]*EntityMetadata)
	for _, entity := range entities {
		metadata.AddEntityToRegistry(entity)
	}
}

// AddEntityToRegistry adds a single entity to the navigation target index.
func (metadata *EntityMetadata) AddEntityToRegistry(entity *EntityMetadata) {
	if metadata == nil || entity == nil {
		return
	}

	if metadata.navigationTargetIndex == nil {
		metadata.navigationTargetIndex = make(map[string]*EntityMetadata)
	}

	if entity.EntityName != "" {
		metadata.navigationTargetIndex[entity.EntityName] = entity
	}
	if entity.EntitySetName != "" {
		metadata.navigationTargetIndex[entity.EntitySetName] = entity
	}
}

// ResolveNavigationTarget returns the target entity metadata for a navigation property.
func (metadata *EntityMetadata) ResolveNavigationTarget(name string) (*EntityMetadata, error) {
	if metadata == nil {
		return nil, fmt.Errorf("entity metadata is nil")
	}

	navProp := metadata.FindNavigationProperty(name)
	if navProp == nil {
		return nil, fmt.Errorf("navigation property '%s' not found", name)
	}

	if metadata.navigationTargetIndex == nil {
		return nil, fmt.Errorf("entity metadata registry is not configured")
	}

	entity, ok := metadata.navigationTargetIndex[navProp.NavigationTarget]
	if !ok {
		return nil, fmt.Errorf("navigation target '%s' not registered", navProp.NavigationTarget)
	}

	return entity, nil
}

// dereferenceType unwraps pointer types to obtain the underlying type.
func dereferenceType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// getTableNameFromReflectType returns the table name for a given entity type
// This respects custom TableName() methods on the entity by using reflection
// to create a zero-value instance and checking if it implements the TableName() interface
func getTableNameFromReflectType(entityType reflect.Type) string {
	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}

	instance := reflect.New(entityType).Interface()
	if tabler, ok := instance.(interface{ TableName() string }); ok {
		return tabler.TableName()
	}

	// Fallback to default GORM naming (snake_case pluralization)
	return toSnakeCase(pluralize(entityType.Name()))
}

// getColumnNameFromProperty computes the database column name for a property
// This respects filter column: tags (preferred) and GORM column: tags, then falls back to snake_case conversion
func getColumnNameFromProperty(prop *PropertyMetadata) string {
	if column := extractTagValue(prop.FilterTag, ",", "column:"); column != "" {
		return column
	}
	if column := extractTagValue(prop.GormTag, ";", "column:"); column != "" {
		return column
	}
	return toSnakeCase(prop.Name)
}

// getForeignKeyColumnName computes the foreign key column name for a navigation property
// This respects filter foreignKey: tags (preferred) and GORM foreignKey: tags, then falls back to <navigation_property_name>_id convention
func getForeignKeyColumnName(prop *PropertyMetadata) string {
	if prop == nil || !prop.IsNavigationProp {
		return ""
	}

	fkField := extractTagValue(prop.FilterTag, ",", "foreignKey:")
	if fkField == "" {
		fkField = extractTagValue(prop.GormTag, ";", "foreignKey:")
	}
	if fkField == "" {
		return toSnakeCase(prop.Name) + "_id"
	}

	return toSnakeCase(fkField)
}

// toSnakeCase converts a camelCase or PascalCase string to snake_case
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			// For "ProductID", we want "product_id" not "product_i_d"
			prevRune := rune(s[i-1])
			if prevRune >= 'a' && prevRune <= 'z' {
				result.WriteRune('_')
			} else if i < len(s)-1 {
				// "XMLParser" -> "xml_parser"
				nextRune := rune(s[i+1])
				if nextRune >= 'a' && nextRune <= 'z' {
					result.WriteRune('_')
				}
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
