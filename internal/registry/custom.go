package registry

import (
	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/schema"
)

// Names of the types every generated schema shares.
const (
	DateScalar             = "Date"
	JSONScalar             = "JSON"
	SortDirectionEnum      = "SortDirection"
	QueryOperatorEnum      = "QueryOperator"
	RangeOperatorEnum      = "RangeOperator"
	QueryTypesEnum         = "QueryTypes"
	AggregationTypesEnum   = "AggregationTypes"
	PageInfoType           = "PageInfo"
	AggregationResultsType = "AggregationResults"
	AggregationBucketType  = "AggregationBucket"
	AggregationKeyType     = "AggregationKey"
	AggregationResultType  = "AggregationResult"
	SearchQueryInput       = "SearchQuery"
	ParameterInput         = "Parameter"
	AggregationInput       = "Aggregation"
)

func named(name string) *schema.TypeRef   { return schema.NamedType(name) }
func nonNull(name string) *schema.TypeRef { return schema.NonNullType(schema.NamedType(name)) }
func listOf(name string) *schema.TypeRef  { return schema.ListType(schema.NamedType(name)) }

func enum(name, description string, values ...[2]string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, description)
	for _, v := range values {
		t.AddEnumValue(schema.NewEnumValue(v[0], v[1]))
	}
	return t
}

// customTypes returns fresh instances of the shared scalars, enums, objects
// and inputs.
func customTypes() []*schema.Type {
	date := schema.NewType(DateScalar, schema.TypeKindScalar, "A point in time formatted as RFC 3339")
	json := schema.NewType(JSONScalar, schema.TypeKindScalar, "Arbitrary JSON value")

	sortDirection := enum(SortDirectionEnum, "The possible sort directions",
		[2]string{string(criteria.Ascending), "Ascending sort direction"},
		[2]string{string(criteria.Descending), "Descending sort direction"},
	)
	queryOperator := enum(QueryOperatorEnum, "The possible operators to combine queries",
		[2]string{string(criteria.OperatorAnd), `Combines the queries using logical "and"`},
		[2]string{string(criteria.OperatorOr), `Combines the queries using logical "or"`},
	)
	rangeOperator := enum(RangeOperatorEnum, "The possible operators for range queries",
		[2]string{"GTE", "Greater than or equals"},
		[2]string{"GT", "Greater than"},
		[2]string{"LTE", "Less than or equals"},
		[2]string{"LT", "Less than"},
	)
	queryTypes := enum(QueryTypesEnum, "The query types a search can perform",
		[2]string{criteria.QueryEquals, "Performs an equals query"},
		[2]string{criteria.QueryContains, "Performs a contains query"},
		[2]string{criteria.QueryEqualsAny, "Performs an equalsAny query"},
		[2]string{criteria.QueryMulti, "Combines multiple queries"},
		[2]string{criteria.QueryNot, "Inverts a query"},
		[2]string{criteria.QueryRange, "Performs a range query"},
	)
	aggregationTypes := schema.NewType(AggregationTypesEnum, schema.TypeKindEnum, "The aggregation types a search can perform")
	for _, a := range criteria.AggregationTypes {
		aggregationTypes.AddEnumValue(schema.NewEnumValue(string(a), "Performs a "+string(a)+" aggregation"))
	}

	pageInfo := schema.NewType(PageInfoType, schema.TypeKindObject, "Contains information about the current page of a connection").
		AddField(schema.NewField("endCursor", "The cursor to the last element in the current connection", named("ID"))).
		AddField(schema.NewField("startCursor", "The cursor to the first element in the current connection", named("ID"))).
		AddField(schema.NewField("hasNextPage", "Shows if there are more items", named("Boolean"))).
		AddField(schema.NewField("hasPreviousPage", "Shows if there are previous items", named("Boolean")))

	aggregationResults := schema.NewType(AggregationResultsType, schema.TypeKindObject, "Contains the results of one aggregation").
		AddField(schema.NewField("name", "Name of the aggregation", named("String"))).
		AddField(schema.NewField("buckets", "One bucket per group, or a single bucket without grouping", listOf(AggregationBucketType)))
	bucket := schema.NewType(AggregationBucketType, schema.TypeKindObject, "The results of one aggregation group").
		AddField(schema.NewField("keys", "The group-by values identifying the bucket", listOf(AggregationKeyType))).
		AddField(schema.NewField("results", "The aggregated values", listOf(AggregationResultType)))
	key := schema.NewType(AggregationKeyType, schema.TypeKindObject, "A group-by field and its value").
		AddField(schema.NewField("field", "The grouped field", named("String"))).
		AddField(schema.NewField("value", "The value of the grouped field", named("String")))
	result := schema.NewType(AggregationResultType, schema.TypeKindObject, "Contains the result of a single aggregation").
		AddField(schema.NewField("type", "The type of the aggregation", named("String"))).
		AddField(schema.NewField("result", "The result of the aggregation", named("String")))

	searchQuery := schema.NewType(SearchQueryInput, schema.TypeKindInputObject, "The query used to filter the items").
		AddInputField(schema.NewInputValue("type", "The query type", nonNull(QueryTypesEnum))).
		AddInputField(schema.NewInputValue("operator", "The operator used to combine the queries", named(QueryOperatorEnum))).
		AddInputField(schema.NewInputValue("queries", "A nested list of queries", listOf(SearchQueryInput))).
		AddInputField(schema.NewInputValue("field", "The field used in the query", named("String"))).
		AddInputField(schema.NewInputValue("value", "The value with which the field will be compared", named("String"))).
		AddInputField(schema.NewInputValue("parameters", "The bounds of a range query", listOf(ParameterInput)))
	parameter := schema.NewType(ParameterInput, schema.TypeKindInputObject, "One bound of a range query").
		AddInputField(schema.NewInputValue("operator", "The operator used to compare the field and the value", nonNull(RangeOperatorEnum))).
		AddInputField(schema.NewInputValue("value", "The value with which the field will be compared", nonNull("Float")))
	aggregation := schema.NewType(AggregationInput, schema.TypeKindInputObject, "An aggregation the search should perform").
		AddInputField(schema.NewInputValue("type", "The aggregation type", nonNull(AggregationTypesEnum))).
		AddInputField(schema.NewInputValue("name", "The name of the aggregation", nonNull("String"))).
		AddInputField(schema.NewInputValue("field", "The field used to aggregate", nonNull("String"))).
		AddInputField(schema.NewInputValue("groupByFields", "Fields to group the results by", listOf("String")))

	return []*schema.Type{
		date, json,
		sortDirection, queryOperator, rangeOperator, queryTypes, aggregationTypes,
		pageInfo, aggregationResults, bucket, key, result,
		searchQuery, parameter, aggregation,
	}
}

// connectionArgs are attached to every connection field.
func connectionArgs() []*schema.InputValue {
	return []*schema.InputValue{
		schema.NewInputValue(criteria.ArgFirst, "The count of items to be returned", named("Int")),
		schema.NewInputValue(criteria.ArgLast, "The count of items to be returned", named("Int")),
		schema.NewInputValue(criteria.ArgAfter, "The cursor to the first result to be fetched", named("String")),
		schema.NewInputValue(criteria.ArgBefore, "The cursor to the last result to be fetched", named("String")),
		schema.NewInputValue(criteria.ArgSortBy, "The field used for sorting", named("String")),
		schema.NewInputValue(criteria.ArgSortDirection, "The direction of the sorting", named(SortDirectionEnum)),
		schema.NewInputValue(criteria.ArgQuery, "The query the search should perform", named(SearchQueryInput)),
		schema.NewInputValue(criteria.ArgAggregations, "The aggregations the search should perform", listOf(AggregationInput)),
	}
}
