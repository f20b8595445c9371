package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/accreditation"
	"vcissuer/internal/accreditation/store"
	"vcissuer/internal/catalog"
	"vcissuer/pkg/platform/sentinel"
)

func memGrant(kind catalog.AccreditationKind, attributeID string) accreditation.Grant {
	return accreditation.Grant{ID: uuid.New(), Kind: kind, AttributeID: attributeID, CreatedAt: time.Now()}
}

func TestInMemoryDeleteByAttribute(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()

	doomed := memGrant(catalog.KindAccredit, "0xdel")
	onboard := memGrant(catalog.KindOnboard, "0xdel")
	kept := memGrant(catalog.KindAccredit, "0xkeep")
	_, _, err := st.CreateGrants(ctx, "0xdel", []accreditation.Grant{doomed, onboard}, []accreditation.TermsOfUse{
		{ID: uuid.New(), AttributeID: "0xdel"},
		{ID: uuid.New(), AttributeID: "0xdel"},
	})
	require.NoError(t, err)
	_, _, err = st.CreateGrants(ctx, "0xkeep", []accreditation.Grant{kept}, []accreditation.TermsOfUse{
		{ID: uuid.New(), AttributeID: "0xkeep"},
	})
	require.NoError(t, err)

	require.NoError(t, st.SaveWhitelistEntry(ctx, &accreditation.WhitelistEntry{
		ID: uuid.New(), Kind: catalog.KindAccredit, DID: "did:ebsi:gone", GrantIDs: []uuid.UUID{doomed.ID},
	}))
	require.NoError(t, st.SaveWhitelistEntry(ctx, &accreditation.WhitelistEntry{
		ID: uuid.New(), Kind: catalog.KindAccredit, DID: "did:ebsi:stays", GrantIDs: []uuid.UUID{kept.ID},
	}))

	removal, err := st.DeleteByAttribute(ctx, "0xdel")
	require.NoError(t, err)
	assert.Equal(t, accreditation.Removal{Grants: 2, Terms: 2, Whitelist: 1}, removal)

	grants, err := st.ListGrants(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, kept.ID, grants[0].ID)

	terms := st.TermsOfUse()
	require.Len(t, terms, 1)
	assert.Equal(t, "0xkeep", terms[0].AttributeID)

	_, err = st.FindWhitelistEntry(ctx, catalog.KindAccredit, "did:ebsi:gone")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = st.FindWhitelistEntry(ctx, catalog.KindAccredit, "did:ebsi:stays")
	assert.NoError(t, err)

	removal, err = st.DeleteByAttribute(ctx, "0xnone")
	require.NoError(t, err)
	assert.True(t, removal.Empty())
}
