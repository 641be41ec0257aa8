package catalog

import (
	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/resource"
)

var systemFields = []string{
	"id",
	"version",
	"versionModifiedAt",
	"createdAt",
	"createdBy",
	"lastModifiedAt",
	"lastModifiedBy",
}

func ignored(extra ...string) []string {
	fields := append([]string{"key"}, systemFields...)
	return append(fields, extra...)
}

func ref(path string, target resource.Kind) ReferenceField {
	return ReferenceField{Path: resource.MustFieldPath(path), Target: target}
}

func customRule() diff.Rule {
	return diff.Custom{Name: "custom", TypeAction: "setCustomType", FieldAction: "setCustomField"}
}

func assetsRule() diff.Rule {
	return diff.KeyedList{
		Name:          "assets",
		KeyField:      "key",
		AddAction:     "addAsset",
		AddParam:      "asset",
		PositionParam: "position",
		RemoveAction:  "removeAsset",
		RemoveParam:   "assetKey",
		ScopeParam:    "assetKey",
		Elements: []diff.Rule{
			diff.Replace{Name: "name", Action: "changeAssetName", Param: "name"},
			diff.Replace{Name: "description", Action: "setAssetDescription", Param: "description"},
			diff.Replace{Name: "sources", Action: "setAssetSources", Param: "sources"},
			diff.Replace{Name: "tags", Action: "setAssetTags", Param: "tags", Unordered: true},
			diff.Custom{Name: "custom", TypeAction: "setAssetCustomType", FieldAction: "setAssetCustomField"},
		},
		ReorderAction: "changeAssetOrder",
		ReorderParam:  "assetOrder",
	}
}

func stateDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindState,
		Endpoint: "states",
		References: []ReferenceField{
			ref("transitions[]", resource.KindState),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "type", Action: "changeType", Param: "type"},
			diff.Replace{Name: "name", Action: "setName", Param: "name"},
			diff.Replace{Name: "description", Action: "setDescription", Param: "description"},
			diff.Replace{Name: "initial", Action: "changeInitial", Param: "initial"},
			diff.Members{Name: "roles", AddAction: "addRoles", RemoveAction: "removeRoles", Param: "roles", Batch: true},
			diff.Replace{Name: "transitions", Action: "setTransitions", Param: "transitions", Unordered: true},
		}, ignored()...),
		SystemFields: systemFields,
	}
}

func productTypeDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindProductType,
		Endpoint: "product-types",
		References: []ReferenceField{
			{Path: resource.MustFieldPath("attributes[].type"), Target: resource.KindProductType, Mode: ReferenceAttributeType},
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "description", Action: "changeDescription", Param: "description"},
			diff.KeyedList{
				Name:         "attributes",
				KeyField:     "name",
				AddAction:    "addAttributeDefinition",
				AddParam:     "attribute",
				RemoveAction: "removeAttributeDefinition",
				RemoveParam:  "name",
				ScopeParam:   "attributeName",
				// attribute types have no update action
				ReplaceOnChange: []string{"type"},
				Elements: []diff.Rule{
					diff.Replace{Name: "label", Action: "changeLabel", Param: "label"},
					diff.Replace{Name: "inputTip", Action: "setInputTip", Param: "inputTip"},
					diff.Replace{Name: "isSearchable", Action: "changeIsSearchable", Param: "isSearchable"},
					diff.Replace{Name: "attributeConstraint", Action: "changeAttributeConstraint", Param: "newValue"},
					diff.Replace{Name: "inputHint", Action: "changeInputHint", Param: "newValue"},
					diff.KeyedList{
						Name:         "type.values",
						KeyField:     "key",
						AddAction:    "addPlainEnumValue",
						AddParam:     "value",
						RemoveAction: "removeEnumValues",
						RemoveParam:  "keys",
						RemoveMany:   true,
						ScopeParam:   "valueKey",
						Elements: []diff.Rule{
							diff.Replace{Name: "label", Action: "changePlainEnumValueLabel", Param: "label"},
						},
						ReorderAction: "changePlainEnumValueOrder",
						ReorderParam:  "values",
					},
				},
				ReorderAction: "changeAttributeOrderByName",
				ReorderParam:  "attributeNames",
			},
		}, ignored()...),
		SystemFields: systemFields,
	}
}

func productDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindProduct,
		Endpoint: "products",
		References: []ReferenceField{
			ref("productType", resource.KindProductType),
			ref("categories[]", resource.KindCategory),
			ref("taxCategory", resource.KindTaxCategory),
			ref("state", resource.KindState),
			ref("attributes[].value", ""),
			ref("assets[].custom.type", resource.KindType),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "slug", Action: "changeSlug", Param: "slug"},
			diff.Replace{Name: "description", Action: "setDescription", Param: "description"},
			diff.Replace{Name: "metaTitle", Action: "setMetaTitle", Param: "metaTitle"},
			diff.Replace{Name: "metaDescription", Action: "setMetaDescription", Param: "metaDescription"},
			diff.Members{Name: "categories", AddAction: "addToCategory", RemoveAction: "removeFromCategory", Param: "category"},
			diff.Replace{Name: "taxCategory", Action: "setTaxCategory", Param: "taxCategory"},
			diff.Replace{Name: "state", Action: "transitionState", Param: "state"},
			diff.KeyedMap{
				Name:       "attributes",
				Action:     "setAttributeInAllVariants",
				NameParam:  "name",
				ValueParam: "value",
				EntryName:  "name",
				EntryValue: "value",
			},
			assetsRule(),
			diff.KeyedList{
				Name:         "images",
				KeyField:     "url",
				AddAction:    "addExternalImage",
				AddParam:     "image",
				RemoveAction: "removeImage",
				RemoveParam:  "imageUrl",
				ScopeParam:   "imageUrl",
				Elements: []diff.Rule{
					diff.Replace{Name: "label", Action: "setImageLabel", Param: "label"},
					diff.Replace{Name: "dimensions", Action: "setImageDimensions", Param: "dimensions"},
				},
				ReorderAction: "changeImageOrder",
				ReorderParam:  "imageUrls",
			},
		}, ignored("productType")...),
		Known: &KnownAttributes{
			Field:      "attributes",
			Source:     "productType",
			SourceKind: resource.KindProductType,
			NamesField: "attributes",
			NameKey:    "name",
		},
		SystemFields: systemFields,
	}
}

func categoryDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindCategory,
		Endpoint: "categories",
		References: []ReferenceField{
			ref("parent", resource.KindCategory),
			ref("custom.type", resource.KindType),
			ref("assets[].custom.type", resource.KindType),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "slug", Action: "changeSlug", Param: "slug"},
			diff.Replace{Name: "description", Action: "setDescription", Param: "description"},
			diff.Replace{Name: "parent", Action: "changeParent", Param: "parent"},
			diff.Replace{Name: "orderHint", Action: "changeOrderHint", Param: "orderHint"},
			diff.Replace{Name: "externalId", Action: "setExternalId", Param: "externalId"},
			diff.Replace{Name: "metaTitle", Action: "setMetaTitle", Param: "metaTitle"},
			diff.Replace{Name: "metaDescription", Action: "setMetaDescription", Param: "metaDescription"},
			assetsRule(),
			customRule(),
		}, ignored()...),
		SystemFields: append(append([]string(nil), systemFields...), "ancestors"),
	}
}

func inventoryEntryDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindInventoryEntry,
		Endpoint: "inventory",
		References: []ReferenceField{
			ref("supplyChannel", resource.KindChannel),
			ref("custom.type", resource.KindType),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "quantityOnStock", Action: "changeQuantity", Param: "quantity"},
			diff.Replace{Name: "restockableInDays", Action: "setRestockableInDays", Param: "restockableInDays"},
			diff.Replace{Name: "expectedDelivery", Action: "setExpectedDelivery", Param: "expectedDelivery"},
			diff.Replace{Name: "supplyChannel", Action: "setSupplyChannel", Param: "supplyChannel"},
			customRule(),
		}, ignored("sku")...),
		SystemFields: append(append([]string(nil), systemFields...), "availableQuantity"),
	}
}

func shoppingListDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindShoppingList,
		Endpoint: "shopping-lists",
		References: []ReferenceField{
			ref("customer", resource.KindCustomer),
			ref("custom.type", resource.KindType),
			ref("lineItems[].custom.type", resource.KindType),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "slug", Action: "setSlug", Param: "slug"},
			diff.Replace{Name: "description", Action: "setDescription", Param: "description"},
			diff.Replace{Name: "customer", Action: "setCustomer", Param: "customer"},
			diff.Replace{Name: "anonymousId", Action: "setAnonymousId", Param: "anonymousId"},
			diff.Replace{
				Name:   "deleteDaysAfterLastModification",
				Action: "setDeleteDaysAfterLastModification",
				Param:  "deleteDaysAfterLastModification",
			},
			diff.KeyedList{
				Name:         "lineItems",
				KeyField:     "sku",
				AddAction:    "addLineItem",
				AddParam:     "lineItem",
				RemoveAction: "removeLineItem",
				RemoveParam:  "sku",
				ScopeParam:   "sku",
				Elements: []diff.Rule{
					diff.Replace{Name: "quantity", Action: "changeLineItemQuantity", Param: "quantity"},
					diff.Custom{Name: "custom", TypeAction: "setLineItemCustomType", FieldAction: "setLineItemCustomField"},
				},
				ReorderAction: "changeLineItemsOrder",
				ReorderParam:  "skus",
			},
			customRule(),
		}, ignored()...),
		SystemFields: systemFields,
	}
}

func typeDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindType,
		Endpoint: "types",
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "description", Action: "setDescription", Param: "description"},
			diff.KeyedList{
				Name:         "fieldDefinitions",
				KeyField:     "name",
				AddAction:    "addFieldDefinition",
				AddParam:     "fieldDefinition",
				RemoveAction: "removeFieldDefinition",
				RemoveParam:  "fieldName",
				ScopeParam:   "fieldName",
				// field types have no update action
				ReplaceOnChange: []string{"type"},
				Elements: []diff.Rule{
					diff.Replace{Name: "label", Action: "changeLabel", Param: "label"},
					diff.Replace{Name: "inputHint", Action: "changeInputHint", Param: "inputHint"},
				},
				ReorderAction: "changeFieldDefinitionOrder",
				ReorderParam:  "fieldNames",
			},
		}, ignored("resourceTypeIds")...),
		SystemFields: systemFields,
	}
}

func taxCategoryDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindTaxCategory,
		Endpoint: "tax-categories",
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "description", Action: "setDescription", Param: "description"},
			diff.KeyedList{
				Name:         "rates",
				KeyField:     "key",
				AddAction:    "addTaxRate",
				AddParam:     "taxRate",
				RemoveAction: "removeTaxRate",
				RemoveParam:  "taxRateKey",
				ScopeParam:   "taxRateKey",
				Elements: []diff.Rule{
					diff.Replace{Name: "name", Action: "setTaxRateName", Param: "name"},
					diff.Replace{Name: "amount", Action: "setTaxRateAmount", Param: "amount"},
					diff.Replace{Name: "includedInPrice", Action: "setTaxRateIncludedInPrice", Param: "includedInPrice"},
					diff.Replace{Name: "country", Action: "setTaxRateCountry", Param: "country"},
					diff.Replace{Name: "state", Action: "setTaxRateState", Param: "state"},
				},
			},
		}, ignored()...),
		SystemFields: systemFields,
	}
}

func channelDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindChannel,
		Endpoint: "channels",
		References: []ReferenceField{
			ref("custom.type", resource.KindType),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "name", Action: "changeName", Param: "name"},
			diff.Replace{Name: "description", Action: "changeDescription", Param: "description"},
			diff.Members{Name: "roles", AddAction: "addRoles", RemoveAction: "removeRoles", Param: "roles", Batch: true},
			customRule(),
		}, ignored()...),
		SystemFields: systemFields,
	}
}

func customerDescriptor() *Descriptor {
	return &Descriptor{
		Kind:     resource.KindCustomer,
		Endpoint: "customers",
		References: []ReferenceField{
			ref("custom.type", resource.KindType),
		},
		Engine: diff.MustEngine([]diff.Rule{
			diff.Replace{Name: "email", Action: "changeEmail", Param: "email"},
			diff.Replace{Name: "firstName", Action: "setFirstName", Param: "firstName"},
			diff.Replace{Name: "lastName", Action: "setLastName", Param: "lastName"},
			diff.Replace{Name: "companyName", Action: "setCompanyName", Param: "companyName"},
			customRule(),
		}, ignored("password")...),
		SystemFields: append(append([]string(nil), systemFields...), "password"),
	}
}

// Default returns the registry of every supported kind in sync order.
func Default() *Registry {
	registry, err := NewRegistry(
		typeDescriptor(),
		taxCategoryDescriptor(),
		channelDescriptor(),
		customerDescriptor(),
		stateDescriptor(),
		productTypeDescriptor(),
		categoryDescriptor(),
		productDescriptor(),
		inventoryEntryDescriptor(),
		shoppingListDescriptor(),
	)
	if err != nil {
		panic(err)
	}
	return registry
}
